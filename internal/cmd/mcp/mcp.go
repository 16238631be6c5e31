// Package mcp parses MCP command flags and launches the stdio MCP server.
package mcp

import (
	"context"
	"flag"
	"fmt"

	"github.com/jsantora/replycore/internal/export"
	feedbackservice "github.com/jsantora/replycore/internal/feedback/service"
	feedbacksqlite "github.com/jsantora/replycore/internal/feedback/storage/sqlite"
	mcpservice "github.com/jsantora/replycore/internal/mcp/service"
	"github.com/jsantora/replycore/internal/merge"
	entrypoint "github.com/jsantora/replycore/internal/platform/cmd"
	templateservice "github.com/jsantora/replycore/internal/template/service"
	templatesqlite "github.com/jsantora/replycore/internal/template/storage/sqlite"
)

// Config holds MCP command configuration.
type Config struct {
	TemplateDBPath string `env:"REPLYCORE_TEMPLATE_DB_PATH" envDefault:"data/templates.db"`
	FeedbackDBPath string `env:"REPLYCORE_FEEDBACK_DB_PATH" envDefault:"data/feedback.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.TemplateDBPath, "template-db-path", cfg.TemplateDBPath, "The template SQLite database path")
	fs.StringVar(&cfg.FeedbackDBPath, "feedback-db-path", cfg.FeedbackDBPath, "The feedback SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP server on stdio.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	templates, err := templatesqlite.Open(cfg.TemplateDBPath)
	if err != nil {
		return fmt.Errorf("open template store: %w", err)
	}
	defer func() { _ = templates.Close() }()

	feedback, err := feedbacksqlite.Open(cfg.FeedbackDBPath)
	if err != nil {
		return fmt.Errorf("open feedback store: %w", err)
	}
	defer func() { _ = feedback.Close() }()

	return mcpservice.Run(ctx, mcpservice.Deps{
		Templates: templateservice.New(templates),
		Merger:    merge.NewEngine(templates),
		Feedback:  feedbackservice.New(feedback),
		Exporter:  export.NewExporter(feedback),
	})
}
