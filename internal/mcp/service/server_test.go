// Package service tests the MCP server wiring.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jsantora/replycore/internal/export"
	feedbackdomain "github.com/jsantora/replycore/internal/feedback/domain"
	feedbackservice "github.com/jsantora/replycore/internal/feedback/service"
	"github.com/jsantora/replycore/internal/mcp/domain"
	"github.com/jsantora/replycore/internal/merge"
	templatedomain "github.com/jsantora/replycore/internal/template/domain"
	templatestorage "github.com/jsantora/replycore/internal/template/storage"
)

// fakeTemplateClient implements domain.TemplateClient for tests.
type fakeTemplateClient struct {
	upsertResult   templatestorage.UpsertResult
	upsertErr      error
	template       templatedomain.Template
	templateErr    error
	snapshots      []templatedomain.Snapshot
	historyErr     error
	rollbackResult templatestorage.UpsertResult
	rollbackErr    error
	businessTypes  []string
	listErr        error

	lastBusinessType string
	lastContent      templatedomain.Content
	lastAllowCreate  bool
	lastTemplateID   string
	lastToVersion    int
}

func (f *fakeTemplateClient) UpsertTemplate(ctx context.Context, businessType string, content templatedomain.Content, allowCreate bool) (templatestorage.UpsertResult, error) {
	f.lastBusinessType = businessType
	f.lastContent = content
	f.lastAllowCreate = allowCreate
	return f.upsertResult, f.upsertErr
}

func (f *fakeTemplateClient) GetActiveTemplate(ctx context.Context, businessType string) (templatedomain.Template, error) {
	f.lastBusinessType = businessType
	return f.template, f.templateErr
}

func (f *fakeTemplateClient) GetVersionHistory(ctx context.Context, templateID string) ([]templatedomain.Snapshot, error) {
	f.lastTemplateID = templateID
	return f.snapshots, f.historyErr
}

func (f *fakeTemplateClient) RollbackTemplate(ctx context.Context, businessType string, toVersion int) (templatestorage.UpsertResult, error) {
	f.lastBusinessType = businessType
	f.lastToVersion = toVersion
	return f.rollbackResult, f.rollbackErr
}

func (f *fakeTemplateClient) ListActiveBusinessTypes(ctx context.Context) ([]string, error) {
	return f.businessTypes, f.listErr
}

// fakeMergeClient implements domain.MergeClient for tests.
type fakeMergeClient struct {
	configuration merge.Configuration
	err           error

	lastBusinessTypes []string
}

func (f *fakeMergeClient) Merge(ctx context.Context, businessTypes []string) (merge.Configuration, error) {
	f.lastBusinessTypes = businessTypes
	return f.configuration, f.err
}

// fakeFeedbackClient implements domain.FeedbackClient for tests.
type fakeFeedbackClient struct {
	listResult feedbackservice.ListResult
	listErr    error
	reviewRow  feedbackdomain.Feedback
	reviewErr  error

	lastTenantID     string
	lastFilter       string
	lastPageSize     int
	lastPageToken    string
	lastReviewParams feedbackservice.ReviewParams
}

func (f *fakeFeedbackClient) ListFeedback(ctx context.Context, tenantID, filter string, pageSize int, pageToken string) (feedbackservice.ListResult, error) {
	f.lastTenantID = tenantID
	f.lastFilter = filter
	f.lastPageSize = pageSize
	f.lastPageToken = pageToken
	return f.listResult, f.listErr
}

func (f *fakeFeedbackClient) ReviewCorrection(ctx context.Context, params feedbackservice.ReviewParams) (feedbackdomain.Feedback, error) {
	f.lastReviewParams = params
	return f.reviewRow, f.reviewErr
}

// fakeExportClient implements domain.ExportClient for tests.
type fakeExportClient struct {
	examples []export.TrainingExample
	err      error

	lastTenantID   string
	lastMinQuality int
	lastLimit      int
}

func (f *fakeExportClient) ExportTrainingData(ctx context.Context, tenantID string, minQuality, limit int) ([]export.TrainingExample, error) {
	f.lastTenantID = tenantID
	f.lastMinQuality = minQuality
	f.lastLimit = limit
	return f.examples, f.err
}

// TestServeRequiresConfiguredServer ensures Serve returns an error when unconfigured.
func TestServeRequiresConfiguredServer(t *testing.T) {
	tests := []struct {
		name   string
		server *Server
	}{
		{name: "nil server", server: nil},
		{name: "missing mcp server", server: &Server{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.server.Serve(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// TestServeStopsOnContext ensures Serve exits when the context is cancelled.
func TestServeStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := New(Deps{Templates: &fakeTemplateClient{}})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	clientCtx, clientCancel := context.WithTimeout(context.Background(), time.Second)
	defer clientCancel()
	clientSession, err := client.Connect(clientCtx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer clientSession.Close()

	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

// TestTemplateUpsertHandlerMapsRequestAndResponse ensures inputs and outputs map consistently.
func TestTemplateUpsertHandlerMapsRequestAndResponse(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	client := &fakeTemplateClient{upsertResult: templatestorage.UpsertResult{
		Template: templatedomain.Template{
			ID:           "tpl-1",
			BusinessType: "HVAC",
			Version:      2,
			Content: templatedomain.Content{
				InquiryTypes: []templatedomain.InquiryType{{Name: "Emergency Repair", Keywords: []string{"no heat"}}},
				ProtocolText: "v2 protocol",
			},
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Changed: true,
	}}
	handler := domain.TemplateUpsertHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TemplateUpsertInput{
		BusinessType: "HVAC",
		Content: domain.TemplateContentPayload{
			InquiryTypes: []domain.InquiryTypePayload{{Name: "Emergency Repair", Keywords: []string{"no heat"}}},
			ProtocolText: "v2 protocol",
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastBusinessType != "HVAC" {
		t.Fatalf("expected business type HVAC, got %q", client.lastBusinessType)
	}
	if client.lastAllowCreate {
		t.Fatal("expected allow_create false by default")
	}
	if len(client.lastContent.InquiryTypes) != 1 || client.lastContent.InquiryTypes[0].Name != "Emergency Repair" {
		t.Fatalf("unexpected content in request: %+v", client.lastContent)
	}
	if output.Template.Version != 2 {
		t.Fatalf("expected version 2, got %d", output.Template.Version)
	}
	if !output.Changed || output.Created {
		t.Fatalf("unexpected flags: changed=%v created=%v", output.Changed, output.Created)
	}
	if output.Template.CreatedAt != "2026-02-10T09:30:00Z" {
		t.Fatalf("unexpected created_at %q", output.Template.CreatedAt)
	}
}

// TestTemplateUpsertHandlerReturnsClientError ensures service errors are returned as tool errors.
func TestTemplateUpsertHandlerReturnsClientError(t *testing.T) {
	client := &fakeTemplateClient{upsertErr: errors.New("boom")}
	handler := domain.TemplateUpsertHandler(client)

	result, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TemplateUpsertInput{BusinessType: "HVAC"})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
}

// TestTemplateHistoryHandlerMapsRequestAndResponse ensures snapshots map consistently.
func TestTemplateHistoryHandlerMapsRequestAndResponse(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	client := &fakeTemplateClient{
		template: templatedomain.Template{ID: "tpl-1", BusinessType: "HVAC", Version: 3},
		snapshots: []templatedomain.Snapshot{
			{ID: "snap-2", TemplateID: "tpl-1", Version: 2, CreatedAt: now},
			{ID: "snap-1", TemplateID: "tpl-1", Version: 1, CreatedAt: now.Add(-time.Hour)},
		},
	}
	handler := domain.TemplateHistoryHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TemplateHistoryInput{BusinessType: "HVAC"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastTemplateID != "tpl-1" {
		t.Fatalf("expected history lookup for tpl-1, got %q", client.lastTemplateID)
	}
	if output.CurrentVersion != 3 {
		t.Fatalf("expected current version 3, got %d", output.CurrentVersion)
	}
	if len(output.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(output.Snapshots))
	}
	if output.Snapshots[0].Version != 2 || output.Snapshots[1].Version != 1 {
		t.Fatalf("unexpected snapshot order: %+v", output.Snapshots)
	}
}

// TestTemplateHistoryHandlerReturnsLookupError ensures missing templates surface as tool errors.
func TestTemplateHistoryHandlerReturnsLookupError(t *testing.T) {
	client := &fakeTemplateClient{templateErr: errors.New("not found")}
	handler := domain.TemplateHistoryHandler(client)

	result, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TemplateHistoryInput{BusinessType: "HVAC"})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
	if client.lastTemplateID != "" {
		t.Fatal("expected no history lookup after failed template lookup")
	}
}

// TestTemplateRollbackHandlerMapsRequestAndResponse ensures rollback inputs map consistently.
func TestTemplateRollbackHandlerMapsRequestAndResponse(t *testing.T) {
	client := &fakeTemplateClient{rollbackResult: templatestorage.UpsertResult{
		Template: templatedomain.Template{ID: "tpl-1", BusinessType: "HVAC", Version: 4},
		Changed:  true,
	}}
	handler := domain.TemplateRollbackHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TemplateRollbackInput{
		BusinessType: "HVAC",
		ToVersion:    1,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastBusinessType != "HVAC" || client.lastToVersion != 1 {
		t.Fatalf("unexpected rollback request: %q version %d", client.lastBusinessType, client.lastToVersion)
	}
	if output.Template.Version != 4 {
		t.Fatalf("expected version 4, got %d", output.Template.Version)
	}
}

// TestMergePreviewHandlerMapsRequestAndResponse ensures configurations map consistently.
func TestMergePreviewHandlerMapsRequestAndResponse(t *testing.T) {
	mergedAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	client := &fakeMergeClient{configuration: merge.Configuration{
		BusinessTypeList: []string{"HVAC", "Plumbing"},
		TemplateCount:    2,
		MergedAt:         mergedAt,
		InquiryTypes: []merge.TaggedInquiryType{
			{Name: "Emergency Repair", BusinessType: "HVAC"},
			{Name: "Drain Cleaning", BusinessType: "Plumbing"},
		},
		Protocols: "hvac protocol\n\nplumbing protocol",
	}}
	handler := domain.MergePreviewHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.MergePreviewInput{
		BusinessTypes: []string{"HVAC", "Plumbing"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if len(client.lastBusinessTypes) != 2 || client.lastBusinessTypes[0] != "HVAC" {
		t.Fatalf("unexpected business types in request: %v", client.lastBusinessTypes)
	}
	if output.TemplateCount != 2 {
		t.Fatalf("expected template count 2, got %d", output.TemplateCount)
	}
	if output.MergedAt != "2026-02-10T09:30:00Z" {
		t.Fatalf("unexpected merged_at %q", output.MergedAt)
	}
	if len(output.InquiryTypes) != 2 || output.InquiryTypes[1].BusinessType != "Plumbing" {
		t.Fatalf("unexpected inquiry types: %+v", output.InquiryTypes)
	}
}

// TestMergePreviewHandlerReturnsClientError ensures merge errors are returned as tool errors.
func TestMergePreviewHandlerReturnsClientError(t *testing.T) {
	client := &fakeMergeClient{err: errors.New("boom")}
	handler := domain.MergePreviewHandler(client)

	result, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.MergePreviewInput{
		BusinessTypes: []string{"HVAC"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
}

// TestFeedbackListHandlerMapsRequestAndResponse ensures paging inputs pass through.
func TestFeedbackListHandlerMapsRequestAndResponse(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	client := &fakeFeedbackClient{listResult: feedbackservice.ListResult{
		Items: []feedbackdomain.Feedback{{
			ID:            "fb-1",
			TenantID:      "tenant-1",
			EmailID:       "email-1",
			Original:      feedbackdomain.Classification{Category: "SPAM", Confidence: 0.9},
			Corrected:     feedbackdomain.Classification{Category: "SUPPORT"},
			QualityRating: 4,
			Status:        feedbackdomain.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}},
		NextPageToken: "token-2",
	}}
	handler := domain.FeedbackListHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.FeedbackListInput{
		TenantID: "tenant-1",
		Filter:   `status = "pending"`,
		PageSize: 25,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastTenantID != "tenant-1" || client.lastFilter != `status = "pending"` || client.lastPageSize != 25 {
		t.Fatalf("unexpected list request: %q %q %d", client.lastTenantID, client.lastFilter, client.lastPageSize)
	}
	if len(output.Feedback) != 1 {
		t.Fatalf("expected 1 row, got %d", len(output.Feedback))
	}
	if output.Feedback[0].Status != "pending" {
		t.Fatalf("expected status pending, got %q", output.Feedback[0].Status)
	}
	if output.Feedback[0].Original.Category != "SPAM" || output.Feedback[0].Corrected.Category != "SUPPORT" {
		t.Fatalf("unexpected classifications: %+v", output.Feedback[0])
	}
	if output.NextPageToken != "token-2" {
		t.Fatalf("expected next page token, got %q", output.NextPageToken)
	}
}

// TestFeedbackReviewHandlerNormalizesStatus ensures the decision string is canonicalized.
func TestFeedbackReviewHandlerNormalizesStatus(t *testing.T) {
	client := &fakeFeedbackClient{reviewRow: feedbackdomain.Feedback{
		ID:         "fb-1",
		TenantID:   "tenant-1",
		Status:     feedbackdomain.StatusApproved,
		ReviewerID: "operator-1",
	}}
	handler := domain.FeedbackReviewHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.FeedbackReviewInput{
		TenantID:   "tenant-1",
		FeedbackID: "fb-1",
		NewStatus:  " Approved ",
		ReviewerID: "operator-1",
		Notes:      "looks right",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastReviewParams.NewStatus != feedbackdomain.StatusApproved {
		t.Fatalf("expected normalized status approved, got %q", client.lastReviewParams.NewStatus)
	}
	if client.lastReviewParams.Notes != "looks right" {
		t.Fatalf("unexpected notes %q", client.lastReviewParams.Notes)
	}
	if output.Feedback.Status != "approved" || output.Feedback.ReviewerID != "operator-1" {
		t.Fatalf("unexpected output row: %+v", output.Feedback)
	}
}

// TestFeedbackReviewHandlerReturnsClientError ensures review errors are returned as tool errors.
func TestFeedbackReviewHandlerReturnsClientError(t *testing.T) {
	client := &fakeFeedbackClient{reviewErr: errors.New("boom")}
	handler := domain.FeedbackReviewHandler(client)

	result, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.FeedbackReviewInput{
		TenantID:   "tenant-1",
		FeedbackID: "fb-1",
		NewStatus:  "approved",
		ReviewerID: "operator-1",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
}

// TestTrainingExportHandlerMapsRequestAndResponse ensures export inputs pass through.
func TestTrainingExportHandlerMapsRequestAndResponse(t *testing.T) {
	client := &fakeExportClient{examples: []export.TrainingExample{{
		Prompt:   "Classify the customer inquiry in email email-1.",
		Label:    "SUPPORT/WARRANTY",
		Metadata: map[string]string{"feedback_id": "fb-1"},
	}}}
	handler := domain.TrainingExportHandler(client)

	result, output, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TrainingExportInput{
		TenantID:   "tenant-1",
		MinQuality: 4,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != nil {
		t.Fatal("expected nil result on success")
	}
	if client.lastTenantID != "tenant-1" || client.lastMinQuality != 4 || client.lastLimit != 10 {
		t.Fatalf("unexpected export request: %q %d %d", client.lastTenantID, client.lastMinQuality, client.lastLimit)
	}
	if output.Exported != 1 || len(output.Examples) != 1 {
		t.Fatalf("expected 1 example, got %+v", output)
	}
	if output.Examples[0].Label != "SUPPORT/WARRANTY" {
		t.Fatalf("unexpected label %q", output.Examples[0].Label)
	}
}

// TestTrainingExportHandlerReturnsClientError ensures export errors are returned as tool errors.
func TestTrainingExportHandlerReturnsClientError(t *testing.T) {
	client := &fakeExportClient{err: errors.New("boom")}
	handler := domain.TrainingExportHandler(client)

	result, _, err := handler(context.Background(), &mcp.CallToolRequest{}, domain.TrainingExportInput{TenantID: "tenant-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Fatal("expected nil result on error")
	}
}

// TestTemplateListResourceHandlerReturnsListing ensures the resource payload is well formed.
func TestTemplateListResourceHandlerReturnsListing(t *testing.T) {
	client := &fakeTemplateClient{businessTypes: []string{"HVAC", "Plumbing"}}
	handler := domain.TemplateListResourceHandler(client)

	result, err := handler(context.Background(), &mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	if result.Contents[0].URI != "templates://list" {
		t.Fatalf("unexpected URI %q", result.Contents[0].URI)
	}

	var payload domain.TemplateListPayload
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.BusinessTypes) != 2 || payload.BusinessTypes[0] != "HVAC" {
		t.Fatalf("unexpected business types: %v", payload.BusinessTypes)
	}
}
