package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jsantora/replycore/internal/merge"
)

// MergeClient is the merge surface the preview tool calls into.
type MergeClient interface {
	Merge(ctx context.Context, businessTypes []string) (merge.Configuration, error)
}

// MergedInquiryPayload is one inquiry type in a merged configuration,
// tagged with its contributing business type.
type MergedInquiryPayload struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	PricingHint  string   `json:"pricing_hint,omitempty"`
	BusinessType string   `json:"business_type"`
}

// MergePreviewInput represents the MCP tool input for merge previews.
type MergePreviewInput struct {
	BusinessTypes []string `json:"business_types" jsonschema:"ordered business type names to merge"`
}

// MergePreviewResult represents the MCP tool output for merge previews.
type MergePreviewResult struct {
	BusinessTypeList []string               `json:"business_type_list"`
	TemplateCount    int                    `json:"template_count"`
	MergedAt         string                 `json:"merged_at"`
	InquiryTypes     []MergedInquiryPayload `json:"inquiry_types"`
	Protocols        string                 `json:"protocols"`
	SpecialRules     []string               `json:"special_rules"`
	UpsellPrompts    []string               `json:"upsell_prompts"`
}

// MergePreviewTool defines the MCP tool schema for merge previews.
func MergePreviewTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "merge_preview",
		Description: "Merges the active templates for an ordered business type list without touching any tenant",
	}
}

// MergePreviewHandler executes a merge preview request.
func MergePreviewHandler(client MergeClient) mcp.ToolHandlerFor[MergePreviewInput, MergePreviewResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MergePreviewInput) (*mcp.CallToolResult, MergePreviewResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		configuration, err := client.Merge(runCtx, input.BusinessTypes)
		if err != nil {
			return nil, MergePreviewResult{}, fmt.Errorf("merge preview failed: %w", err)
		}

		result := MergePreviewResult{
			BusinessTypeList: configuration.BusinessTypeList,
			TemplateCount:    configuration.TemplateCount,
			MergedAt:         formatTime(configuration.MergedAt),
			Protocols:        configuration.Protocols,
			SpecialRules:     configuration.SpecialRules,
			UpsellPrompts:    configuration.UpsellPrompts,
		}
		for _, inquiry := range configuration.InquiryTypes {
			result.InquiryTypes = append(result.InquiryTypes, MergedInquiryPayload{
				Name:         inquiry.Name,
				Description:  inquiry.Description,
				Keywords:     inquiry.Keywords,
				PricingHint:  inquiry.PricingHint,
				BusinessType: inquiry.BusinessType,
			})
		}
		return nil, result, nil
	}
}
