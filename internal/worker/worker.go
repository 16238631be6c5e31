// Package worker runs the scheduled daily metrics aggregation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	metricsdomain "github.com/jsantora/replycore/internal/metrics/domain"
)

// DefaultSchedule runs the aggregation shortly after UTC midnight so the
// previous day is complete.
const DefaultSchedule = "10 0 * * *"

// DefaultConcurrency bounds how many tenants aggregate at once.
const DefaultConcurrency = 4

// TenantLister reports which tenants recorded corrections in a window.
type TenantLister interface {
	TenantsWithCorrections(ctx context.Context, from, to time.Time) ([]string, error)
}

// DailyAggregator computes one tenant's snapshot for one day.
type DailyAggregator interface {
	ComputeDailyMetrics(ctx context.Context, tenantID, date string) (metricsdomain.Snapshot, error)
}

// Config holds worker tuning. Zero values fall back to defaults.
type Config struct {
	// Schedule is a 5-field cron expression (minute hour day-of-month
	// month day-of-week) evaluated in UTC.
	Schedule    string
	Concurrency int
	Logger      *slog.Logger
}

// Worker drives the daily aggregation on a cron schedule.
type Worker struct {
	tenants     TenantLister
	metrics     DailyAggregator
	schedule    cron.Schedule
	concurrency int
	logger      *slog.Logger
	clock       func() time.Time
}

// New creates a worker. The schedule defaults to shortly after UTC
// midnight when empty.
func New(tenants TenantLister, metrics DailyAggregator, cfg Config) (*Worker, error) {
	if tenants == nil || metrics == nil {
		return nil, errors.New("tenant lister and aggregator are required")
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	parsed, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		tenants:     tenants,
		metrics:     metrics,
		schedule:    parsed,
		concurrency: concurrency,
		logger:      logger,
		clock:       time.Now,
	}, nil
}

// Run blocks, aggregating the previous UTC day at every scheduled tick,
// until the context ends. Failed runs are logged and retried at the next
// tick.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker is not configured")
	}

	for {
		now := w.clock().UTC()
		next := w.schedule.Next(now)
		w.logger.Info("metrics run scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		date := PreviousDay(w.clock())
		if err := w.RunOnce(ctx, date); err != nil {
			w.logger.Error("metrics run failed", "date", date, "error", err)
		}
	}
}

// RunOnce aggregates every tenant with corrections on the given day,
// fanning out across tenants with bounded concurrency.
func (w *Worker) RunOnce(ctx context.Context, date string) error {
	if w == nil {
		return errors.New("worker is not configured")
	}
	dayStart, err := metricsdomain.ParseDate(date)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", date, err)
	}

	tenants, err := w.tenants.TenantsWithCorrections(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(tenants) == 0 {
		w.logger.Info("metrics run complete", "date", date, "tenants", 0)
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.concurrency)
	for _, tenantID := range tenants {
		group.Go(func() error {
			if _, err := w.metrics.ComputeDailyMetrics(groupCtx, tenantID, date); err != nil {
				return fmt.Errorf("tenant %s: %w", tenantID, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	w.logger.Info("metrics run complete", "date", date, "tenants", len(tenants))
	return nil
}

// PreviousDay returns the UTC date string for the day before now.
func PreviousDay(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(time.DateOnly)
}
