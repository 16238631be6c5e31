// Package server parses server command flags and launches the HTTP API.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	httpapi "github.com/jsantora/replycore/internal/api/http"
	"github.com/jsantora/replycore/internal/auth"
	"github.com/jsantora/replycore/internal/export"
	feedbackservice "github.com/jsantora/replycore/internal/feedback/service"
	feedbacksqlite "github.com/jsantora/replycore/internal/feedback/storage/sqlite"
	"github.com/jsantora/replycore/internal/merge"
	metricsservice "github.com/jsantora/replycore/internal/metrics/service"
	metricssqlite "github.com/jsantora/replycore/internal/metrics/storage/sqlite"
	entrypoint "github.com/jsantora/replycore/internal/platform/cmd"
	profileservice "github.com/jsantora/replycore/internal/profile/service"
	profilesqlite "github.com/jsantora/replycore/internal/profile/storage/sqlite"
	templateservice "github.com/jsantora/replycore/internal/template/service"
	templatesqlite "github.com/jsantora/replycore/internal/template/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Config holds server command configuration.
type Config struct {
	HTTPAddr       string  `env:"REPLYCORE_HTTP_ADDR" envDefault:":8080"`
	TemplateDBPath string  `env:"REPLYCORE_TEMPLATE_DB_PATH" envDefault:"data/templates.db"`
	ProfileDBPath  string  `env:"REPLYCORE_PROFILE_DB_PATH" envDefault:"data/profiles.db"`
	FeedbackDBPath string  `env:"REPLYCORE_FEEDBACK_DB_PATH" envDefault:"data/feedback.db"`
	MetricsDBPath  string  `env:"REPLYCORE_METRICS_DB_PATH" envDefault:"data/metrics.db"`
	Threshold      float64 `env:"REPLYCORE_METRICS_THRESHOLD"`
	ExportQuality  int     `env:"REPLYCORE_EXPORT_MIN_QUALITY"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.StringVar(&cfg.TemplateDBPath, "template-db-path", cfg.TemplateDBPath, "The template SQLite database path")
	fs.StringVar(&cfg.ProfileDBPath, "profile-db-path", cfg.ProfileDBPath, "The tenant profile SQLite database path")
	fs.StringVar(&cfg.FeedbackDBPath, "feedback-db-path", cfg.FeedbackDBPath, "The feedback SQLite database path")
	fs.StringVar(&cfg.MetricsDBPath, "metrics-db-path", cfg.MetricsDBPath, "The metrics SQLite database path")
	fs.Float64Var(&cfg.Threshold, "metrics-threshold", cfg.Threshold, "High-confidence error threshold (0 for default)")
	fs.IntVar(&cfg.ExportQuality, "export-min-quality", cfg.ExportQuality, "Default rating floor for training exports (0 for default)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the HTTP API runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	grants, err := auth.LoadVerifierConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load grant config: %w", err)
	}

	templates, err := templatesqlite.Open(cfg.TemplateDBPath)
	if err != nil {
		return fmt.Errorf("open template store: %w", err)
	}
	defer func() { _ = templates.Close() }()

	profiles, err := profilesqlite.Open(cfg.ProfileDBPath)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer func() { _ = profiles.Close() }()

	feedback, err := feedbacksqlite.Open(cfg.FeedbackDBPath)
	if err != nil {
		return fmt.Errorf("open feedback store: %w", err)
	}
	defer func() { _ = feedback.Close() }()

	metrics, err := metricssqlite.Open(cfg.MetricsDBPath)
	if err != nil {
		return fmt.Errorf("open metrics store: %w", err)
	}
	defer func() { _ = metrics.Close() }()

	engine := merge.NewEngine(templates)
	server := httpapi.NewServer(httpapi.Config{
		Templates: templateservice.New(templates),
		Resolver:  profileservice.NewResolver(profiles, templates, engine),
		Feedback:  feedbackservice.New(feedback),
		Metrics:   metricsservice.NewAggregator(feedback, metrics).WithThreshold(cfg.Threshold),
		Exporter:  export.NewExporter(feedback).WithMinQuality(cfg.ExportQuality),
		Grants:    grants,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("http api listening", "addr", cfg.HTTPAddr)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}
