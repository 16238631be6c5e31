// Package seed parses seed command flags and loads the template catalog.
package seed

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jsantora/replycore/internal/catalog"
	entrypoint "github.com/jsantora/replycore/internal/platform/cmd"
	templateservice "github.com/jsantora/replycore/internal/template/service"
	templatesqlite "github.com/jsantora/replycore/internal/template/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	TemplateDBPath string `env:"REPLYCORE_TEMPLATE_DB_PATH" envDefault:"data/templates.db"`
	CatalogPath    string `env:"REPLYCORE_CATALOG_PATH" envDefault:"catalog.yaml"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.TemplateDBPath, "template-db-path", cfg.TemplateDBPath, "The template SQLite database path")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "The template catalog YAML path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds the template store from the catalog and exits.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loaded, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	templates, err := templatesqlite.Open(cfg.TemplateDBPath)
	if err != nil {
		return fmt.Errorf("open template store: %w", err)
	}
	defer func() { _ = templates.Close() }()

	result, err := catalog.Seed(ctx, templateservice.New(templates), loaded)
	if err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}
	logger.Info("catalog seeded",
		"catalog", cfg.CatalogPath,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
	)
	return nil
}
