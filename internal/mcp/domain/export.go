package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jsantora/replycore/internal/export"
)

// ExportClient is the training export surface the MCP tool calls into.
type ExportClient interface {
	ExportTrainingData(ctx context.Context, tenantID string, minQuality, limit int) ([]export.TrainingExample, error)
}

// TrainingExamplePayload is one exported (prompt, label) pair.
type TrainingExamplePayload struct {
	Prompt   string            `json:"prompt"`
	Label    string            `json:"label"`
	Metadata map[string]string `json:"metadata"`
}

// TrainingExportInput represents the MCP tool input for training exports.
type TrainingExportInput struct {
	TenantID   string `json:"tenant_id" jsonschema:"tenant identifier"`
	MinQuality int    `json:"min_quality,omitempty" jsonschema:"rating floor 1-5, 0 for the configured default"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum examples to export, 0 for no limit"`
}

// TrainingExportResult represents the MCP tool output for training exports.
type TrainingExportResult struct {
	Examples []TrainingExamplePayload `json:"examples" jsonschema:"exported training examples"`
	Exported int                      `json:"exported" jsonschema:"number of rows moved to used"`
}

// TrainingExportTool defines the MCP tool schema for training exports.
func TrainingExportTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "training_export",
		Description: "Exports approved corrections as training examples, moving each exported row to used",
	}
}

// TrainingExportHandler executes a training export request.
func TrainingExportHandler(client ExportClient) mcp.ToolHandlerFor[TrainingExportInput, TrainingExportResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TrainingExportInput) (*mcp.CallToolResult, TrainingExportResult, error) {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		examples, err := client.ExportTrainingData(runCtx, input.TenantID, input.MinQuality, input.Limit)
		if err != nil {
			return nil, TrainingExportResult{}, fmt.Errorf("training export failed: %w", err)
		}

		result := TrainingExportResult{
			Examples: make([]TrainingExamplePayload, 0, len(examples)),
			Exported: len(examples),
		}
		for _, example := range examples {
			result.Examples = append(result.Examples, TrainingExamplePayload{
				Prompt:   example.Prompt,
				Label:    example.Label,
				Metadata: example.Metadata,
			})
		}
		return nil, result, nil
	}
}
