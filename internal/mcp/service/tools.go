package service

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jsantora/replycore/internal/mcp/domain"
)

func registerTemplateTools(mcpServer *mcp.Server, client domain.TemplateClient) {
	mcp.AddTool(mcpServer, domain.TemplateUpsertTool(), domain.TemplateUpsertHandler(client))
	mcp.AddTool(mcpServer, domain.TemplateHistoryTool(), domain.TemplateHistoryHandler(client))
	mcp.AddTool(mcpServer, domain.TemplateRollbackTool(), domain.TemplateRollbackHandler(client))
}

func registerMergeTools(mcpServer *mcp.Server, client domain.MergeClient) {
	mcp.AddTool(mcpServer, domain.MergePreviewTool(), domain.MergePreviewHandler(client))
}

func registerFeedbackTools(mcpServer *mcp.Server, client domain.FeedbackClient) {
	mcp.AddTool(mcpServer, domain.FeedbackListTool(), domain.FeedbackListHandler(client))
	mcp.AddTool(mcpServer, domain.FeedbackReviewTool(), domain.FeedbackReviewHandler(client))
}

func registerExportTools(mcpServer *mcp.Server, client domain.ExportClient) {
	mcp.AddTool(mcpServer, domain.TrainingExportTool(), domain.TrainingExportHandler(client))
}

// registerTemplateResources registers readable template MCP resources.
func registerTemplateResources(mcpServer *mcp.Server, client domain.TemplateClient) {
	mcpServer.AddResource(domain.TemplateListResource(), domain.TemplateListResourceHandler(client))
}
