// Package service wires the MCP tool surface over the template, merge,
// feedback and export services.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jsantora/replycore/internal/mcp/domain"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "ReplyCore MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Deps holds the in-process services the MCP tools operate on. Any nil
// dependency leaves its tools unregistered.
type Deps struct {
	Templates domain.TemplateClient
	Merger    domain.MergeClient
	Feedback  domain.FeedbackClient
	Exporter  domain.ExportClient
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates a configured MCP server over the provided services.
func New(deps Deps) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	if deps.Templates != nil {
		registerTemplateTools(mcpServer, deps.Templates)
		registerTemplateResources(mcpServer, deps.Templates)
	}
	if deps.Merger != nil {
		registerMergeTools(mcpServer, deps.Merger)
	}
	if deps.Feedback != nil {
		registerFeedbackTools(mcpServer, deps.Feedback)
	}
	if deps.Exporter != nil {
		registerExportTools(mcpServer, deps.Exporter)
	}

	return &Server{mcpServer: mcpServer}
}

// Run creates a server over the provided services and serves it on stdio
// until the context ends.
func Run(ctx context.Context, deps Deps) error {
	return New(deps).Serve(ctx)
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// serveWithTransport starts the MCP server using the provided transport.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
