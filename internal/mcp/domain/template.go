// Package domain defines the MCP tool and resource surface for template
// and feedback administration.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	templatedomain "github.com/jsantora/replycore/internal/template/domain"
	templatestorage "github.com/jsantora/replycore/internal/template/storage"
)

// TemplateClient is the template administration surface the MCP tools
// call into.
type TemplateClient interface {
	UpsertTemplate(ctx context.Context, businessType string, content templatedomain.Content, allowCreate bool) (templatestorage.UpsertResult, error)
	GetActiveTemplate(ctx context.Context, businessType string) (templatedomain.Template, error)
	GetVersionHistory(ctx context.Context, templateID string) ([]templatedomain.Snapshot, error)
	RollbackTemplate(ctx context.Context, businessType string, toVersion int) (templatestorage.UpsertResult, error)
	ListActiveBusinessTypes(ctx context.Context) ([]string, error)
}

// InquiryTypePayload is one inquiry category inside template content.
type InquiryTypePayload struct {
	Name        string   `json:"name" jsonschema:"inquiry type name"`
	Description string   `json:"description,omitempty" jsonschema:"optional description"`
	Keywords    []string `json:"keywords,omitempty" jsonschema:"classification keywords"`
	PricingHint string   `json:"pricing_hint,omitempty" jsonschema:"optional pricing hint"`
}

// TemplateContentPayload carries the versioned fields of a template.
type TemplateContentPayload struct {
	InquiryTypes  []InquiryTypePayload `json:"inquiry_types" jsonschema:"ordered inquiry types"`
	ProtocolText  string               `json:"protocol_text" jsonschema:"reply protocol text"`
	SpecialRules  []string             `json:"special_rules,omitempty" jsonschema:"ordered special rules"`
	UpsellPrompts []string             `json:"upsell_prompts,omitempty" jsonschema:"ordered upsell prompts"`
}

// TemplatePayload is the active template record for one business type.
type TemplatePayload struct {
	ID           string                 `json:"id"`
	BusinessType string                 `json:"business_type"`
	Version      int                    `json:"version"`
	Content      TemplateContentPayload `json:"content"`
	Active       bool                   `json:"active"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at"`
}

// SnapshotPayload is one archived template version.
type SnapshotPayload struct {
	ID         string                 `json:"id"`
	TemplateID string                 `json:"template_id"`
	Version    int                    `json:"version"`
	Content    TemplateContentPayload `json:"content"`
	CreatedAt  string                 `json:"created_at"`
}

// TemplateUpsertInput represents the MCP tool input for template upserts.
type TemplateUpsertInput struct {
	BusinessType string                 `json:"business_type" jsonschema:"business type name"`
	Content      TemplateContentPayload `json:"content" jsonschema:"template content"`
	AllowCreate  bool                   `json:"allow_create,omitempty" jsonschema:"create the template when missing"`
}

// TemplateUpsertResult represents the MCP tool output for template upserts.
type TemplateUpsertResult struct {
	Template TemplatePayload `json:"template" jsonschema:"active template after the upsert"`
	Changed  bool            `json:"changed" jsonschema:"whether the content changed"`
	Created  bool            `json:"created" jsonschema:"whether a new template was created"`
}

// TemplateHistoryInput represents the MCP tool input for version history.
type TemplateHistoryInput struct {
	BusinessType string `json:"business_type" jsonschema:"business type name"`
}

// TemplateHistoryResult represents the MCP tool output for version history.
type TemplateHistoryResult struct {
	BusinessType   string            `json:"business_type" jsonschema:"business type name"`
	CurrentVersion int               `json:"current_version" jsonschema:"active template version"`
	Snapshots      []SnapshotPayload `json:"snapshots" jsonschema:"archived versions, newest first"`
}

// TemplateRollbackInput represents the MCP tool input for rollbacks.
type TemplateRollbackInput struct {
	BusinessType string `json:"business_type" jsonschema:"business type name"`
	ToVersion    int    `json:"to_version" jsonschema:"archived version to restore"`
}

// TemplateRollbackResult represents the MCP tool output for rollbacks.
type TemplateRollbackResult struct {
	Template TemplatePayload `json:"template" jsonschema:"active template after the rollback"`
}

// TemplateListPayload represents the MCP resource payload for business
// type listings.
type TemplateListPayload struct {
	BusinessTypes []string `json:"business_types"`
}

// TemplateUpsertTool defines the MCP tool schema for template upserts.
func TemplateUpsertTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "template_upsert",
		Description: "Creates or updates the active template for a business type, bumping the version on content change",
	}
}

// TemplateHistoryTool defines the MCP tool schema for version history.
func TemplateHistoryTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "template_history",
		Description: "Lists archived version snapshots for a business type template",
	}
}

// TemplateRollbackTool defines the MCP tool schema for rollbacks.
func TemplateRollbackTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "template_rollback",
		Description: "Restores an archived template version as a new version of the active template",
	}
}

// TemplateListResource defines the MCP resource for business type listings.
func TemplateListResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "template_list",
		Title:       "Business Types",
		Description: "Readable listing of business types with an active template",
		MIMEType:    "application/json",
		URI:         "templates://list",
	}
}

// TemplateUpsertHandler executes a template upsert request.
func TemplateUpsertHandler(client TemplateClient) mcp.ToolHandlerFor[TemplateUpsertInput, TemplateUpsertResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TemplateUpsertInput) (*mcp.CallToolResult, TemplateUpsertResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		result, err := client.UpsertTemplate(runCtx, input.BusinessType, contentFromPayload(input.Content), input.AllowCreate)
		if err != nil {
			return nil, TemplateUpsertResult{}, fmt.Errorf("template upsert failed: %w", err)
		}

		return nil, TemplateUpsertResult{
			Template: templateToPayload(result.Template),
			Changed:  result.Changed,
			Created:  result.Created,
		}, nil
	}
}

// TemplateHistoryHandler executes a version history request.
func TemplateHistoryHandler(client TemplateClient) mcp.ToolHandlerFor[TemplateHistoryInput, TemplateHistoryResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TemplateHistoryInput) (*mcp.CallToolResult, TemplateHistoryResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		template, err := client.GetActiveTemplate(runCtx, input.BusinessType)
		if err != nil {
			return nil, TemplateHistoryResult{}, fmt.Errorf("template lookup failed: %w", err)
		}
		snapshots, err := client.GetVersionHistory(runCtx, template.ID)
		if err != nil {
			return nil, TemplateHistoryResult{}, fmt.Errorf("template history failed: %w", err)
		}

		result := TemplateHistoryResult{
			BusinessType:   template.BusinessType,
			CurrentVersion: template.Version,
			Snapshots:      make([]SnapshotPayload, 0, len(snapshots)),
		}
		for _, snapshot := range snapshots {
			result.Snapshots = append(result.Snapshots, SnapshotPayload{
				ID:         snapshot.ID,
				TemplateID: snapshot.TemplateID,
				Version:    snapshot.Version,
				Content:    contentToPayload(snapshot.Content),
				CreatedAt:  formatTime(snapshot.CreatedAt),
			})
		}
		return nil, result, nil
	}
}

// TemplateRollbackHandler executes a rollback request.
func TemplateRollbackHandler(client TemplateClient) mcp.ToolHandlerFor[TemplateRollbackInput, TemplateRollbackResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TemplateRollbackInput) (*mcp.CallToolResult, TemplateRollbackResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		result, err := client.RollbackTemplate(runCtx, input.BusinessType, input.ToVersion)
		if err != nil {
			return nil, TemplateRollbackResult{}, fmt.Errorf("template rollback failed: %w", err)
		}

		return nil, TemplateRollbackResult{Template: templateToPayload(result.Template)}, nil
	}
}

// TemplateListResourceHandler returns a readable business type listing.
func TemplateListResourceHandler(client TemplateClient) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if client == nil {
			return nil, fmt.Errorf("template client is not configured")
		}

		uri := TemplateListResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}

		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		businessTypes, err := client.ListActiveBusinessTypes(runCtx)
		if err != nil {
			return nil, fmt.Errorf("business type listing failed: %w", err)
		}

		data, err := json.MarshalIndent(TemplateListPayload{BusinessTypes: businessTypes}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal business type listing: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

func contentFromPayload(payload TemplateContentPayload) templatedomain.Content {
	content := templatedomain.Content{
		ProtocolText:  payload.ProtocolText,
		SpecialRules:  payload.SpecialRules,
		UpsellPrompts: payload.UpsellPrompts,
	}
	for _, inquiry := range payload.InquiryTypes {
		content.InquiryTypes = append(content.InquiryTypes, templatedomain.InquiryType{
			Name:        inquiry.Name,
			Description: inquiry.Description,
			Keywords:    inquiry.Keywords,
			PricingHint: inquiry.PricingHint,
		})
	}
	return content
}

func contentToPayload(content templatedomain.Content) TemplateContentPayload {
	payload := TemplateContentPayload{
		ProtocolText:  content.ProtocolText,
		SpecialRules:  content.SpecialRules,
		UpsellPrompts: content.UpsellPrompts,
	}
	for _, inquiry := range content.InquiryTypes {
		payload.InquiryTypes = append(payload.InquiryTypes, InquiryTypePayload{
			Name:        inquiry.Name,
			Description: inquiry.Description,
			Keywords:    inquiry.Keywords,
			PricingHint: inquiry.PricingHint,
		})
	}
	return payload
}

func templateToPayload(template templatedomain.Template) TemplatePayload {
	return TemplatePayload{
		ID:           template.ID,
		BusinessType: template.BusinessType,
		Version:      template.Version,
		Content:      contentToPayload(template.Content),
		Active:       template.Active,
		CreatedAt:    formatTime(template.CreatedAt),
		UpdatedAt:    formatTime(template.UpdatedAt),
	}
}

// formatTime returns an RFC3339 timestamp or empty string.
func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
