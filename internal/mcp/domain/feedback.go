package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	feedbackdomain "github.com/jsantora/replycore/internal/feedback/domain"
	feedbackservice "github.com/jsantora/replycore/internal/feedback/service"
)

// FeedbackClient is the review surface the MCP tools call into.
type FeedbackClient interface {
	ListFeedback(ctx context.Context, tenantID, filter string, pageSize int, pageToken string) (feedbackservice.ListResult, error)
	ReviewCorrection(ctx context.Context, params feedbackservice.ReviewParams) (feedbackdomain.Feedback, error)
}

// ClassificationPayload is one classification decision.
type ClassificationPayload struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence"`
	AICanReply  bool    `json:"ai_can_reply"`
	Reason      string  `json:"reason,omitempty"`
}

// FeedbackPayload is one classification feedback row.
type FeedbackPayload struct {
	ID            string                `json:"id"`
	TenantID      string                `json:"tenant_id"`
	EmailID       string                `json:"email_id"`
	Original      ClassificationPayload `json:"original"`
	Corrected     ClassificationPayload `json:"corrected"`
	QualityRating int                   `json:"quality_rating"`
	Status        string                `json:"status"`
	Source        string                `json:"source,omitempty"`
	ReviewerID    string                `json:"reviewer_id,omitempty"`
	ReviewNotes   string                `json:"review_notes,omitempty"`
	SupersedesID  string                `json:"supersedes_id,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

// FeedbackListInput represents the MCP tool input for review queue listings.
type FeedbackListInput struct {
	TenantID  string `json:"tenant_id" jsonschema:"tenant identifier"`
	Filter    string `json:"filter,omitempty" jsonschema:"optional AIP-160 filter over status, rating, category, original_category, source, email_id and created_at"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum rows per page"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a prior page"`
}

// FeedbackListResult represents the MCP tool output for review queue listings.
type FeedbackListResult struct {
	Feedback      []FeedbackPayload `json:"feedback" jsonschema:"matching rows, newest first"`
	NextPageToken string            `json:"next_page_token,omitempty" jsonschema:"token for the next page, empty when exhausted"`
}

// FeedbackReviewInput represents the MCP tool input for review decisions.
type FeedbackReviewInput struct {
	TenantID   string `json:"tenant_id" jsonschema:"tenant identifier"`
	FeedbackID string `json:"feedback_id" jsonschema:"feedback row identifier"`
	NewStatus  string `json:"new_status" jsonschema:"review decision (approved or rejected)"`
	ReviewerID string `json:"reviewer_id" jsonschema:"reviewing operator identifier"`
	Notes      string `json:"notes,omitempty" jsonschema:"optional review notes"`
}

// FeedbackReviewResult represents the MCP tool output for review decisions.
type FeedbackReviewResult struct {
	Feedback FeedbackPayload `json:"feedback" jsonschema:"row after the review decision"`
}

// FeedbackListTool defines the MCP tool schema for review queue listings.
func FeedbackListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "feedback_list",
		Description: "Lists a tenant's classification feedback rows with optional filtering and paging",
	}
}

// FeedbackReviewTool defines the MCP tool schema for review decisions.
func FeedbackReviewTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "feedback_review",
		Description: "Approves or rejects a pending classification correction",
	}
}

// FeedbackListHandler executes a review queue listing request.
func FeedbackListHandler(client FeedbackClient) mcp.ToolHandlerFor[FeedbackListInput, FeedbackListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input FeedbackListInput) (*mcp.CallToolResult, FeedbackListResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		page, err := client.ListFeedback(runCtx, input.TenantID, input.Filter, input.PageSize, input.PageToken)
		if err != nil {
			return nil, FeedbackListResult{}, fmt.Errorf("feedback list failed: %w", err)
		}

		result := FeedbackListResult{
			Feedback:      make([]FeedbackPayload, 0, len(page.Items)),
			NextPageToken: page.NextPageToken,
		}
		for _, row := range page.Items {
			result.Feedback = append(result.Feedback, feedbackToPayload(row))
		}
		return nil, result, nil
	}
}

// FeedbackReviewHandler executes a review decision request.
func FeedbackReviewHandler(client FeedbackClient) mcp.ToolHandlerFor[FeedbackReviewInput, FeedbackReviewResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input FeedbackReviewInput) (*mcp.CallToolResult, FeedbackReviewResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		row, err := client.ReviewCorrection(runCtx, feedbackservice.ReviewParams{
			TenantID:   input.TenantID,
			FeedbackID: input.FeedbackID,
			NewStatus:  feedbackdomain.Status(strings.ToLower(strings.TrimSpace(input.NewStatus))),
			ReviewerID: input.ReviewerID,
			Notes:      input.Notes,
		})
		if err != nil {
			return nil, FeedbackReviewResult{}, fmt.Errorf("feedback review failed: %w", err)
		}

		return nil, FeedbackReviewResult{Feedback: feedbackToPayload(row)}, nil
	}
}

func feedbackToPayload(row feedbackdomain.Feedback) FeedbackPayload {
	return FeedbackPayload{
		ID:            row.ID,
		TenantID:      row.TenantID,
		EmailID:       row.EmailID,
		Original:      classificationToPayload(row.Original),
		Corrected:     classificationToPayload(row.Corrected),
		QualityRating: row.QualityRating,
		Status:        string(row.Status),
		Source:        row.Source,
		ReviewerID:    row.ReviewerID,
		ReviewNotes:   row.ReviewNotes,
		SupersedesID:  row.SupersedesID,
		CreatedAt:     formatTime(row.CreatedAt),
		UpdatedAt:     formatTime(row.UpdatedAt),
	}
}

func classificationToPayload(classification feedbackdomain.Classification) ClassificationPayload {
	return ClassificationPayload{
		Category:    classification.Category,
		Subcategory: classification.Subcategory,
		Confidence:  classification.Confidence,
		AICanReply:  classification.AICanReply,
		Reason:      classification.Reason,
	}
}
