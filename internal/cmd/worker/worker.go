// Package worker parses worker command flags and launches the metrics
// worker runtime.
package worker

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	feedbacksqlite "github.com/jsantora/replycore/internal/feedback/storage/sqlite"
	metricsservice "github.com/jsantora/replycore/internal/metrics/service"
	metricssqlite "github.com/jsantora/replycore/internal/metrics/storage/sqlite"
	entrypoint "github.com/jsantora/replycore/internal/platform/cmd"
	"github.com/jsantora/replycore/internal/worker"
)

// Config holds worker command configuration.
type Config struct {
	FeedbackDBPath string  `env:"REPLYCORE_FEEDBACK_DB_PATH" envDefault:"data/feedback.db"`
	MetricsDBPath  string  `env:"REPLYCORE_METRICS_DB_PATH" envDefault:"data/metrics.db"`
	Schedule       string  `env:"REPLYCORE_WORKER_SCHEDULE" envDefault:"10 0 * * *"`
	Concurrency    int     `env:"REPLYCORE_WORKER_CONCURRENCY" envDefault:"4"`
	Threshold      float64 `env:"REPLYCORE_METRICS_THRESHOLD"`
	// Date runs one aggregation for the given UTC day and exits instead
	// of scheduling.
	Date string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.FeedbackDBPath, "feedback-db-path", cfg.FeedbackDBPath, "The feedback SQLite database path")
	fs.StringVar(&cfg.MetricsDBPath, "metrics-db-path", cfg.MetricsDBPath, "The metrics SQLite database path")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Cron schedule for the daily aggregation (UTC)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Maximum tenants aggregated at once")
	fs.Float64Var(&cfg.Threshold, "metrics-threshold", cfg.Threshold, "High-confidence error threshold (0 for default)")
	fs.StringVar(&cfg.Date, "date", cfg.Date, "Run once for the given YYYY-MM-DD day and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the metrics worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

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

	aggregator := metricsservice.NewAggregator(feedback, metrics).WithThreshold(cfg.Threshold)
	w, err := worker.New(feedback, aggregator, worker.Config{
		Schedule:    cfg.Schedule,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if cfg.Date != "" {
		return w.RunOnce(ctx, cfg.Date)
	}
	return w.Run(ctx)
}
