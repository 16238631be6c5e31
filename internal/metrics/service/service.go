// Package service computes daily accuracy metrics from correction
// feedback.
package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	feedbackdomain "github.com/jsantora/replycore/internal/feedback/domain"
	"github.com/jsantora/replycore/internal/metrics/domain"
	"github.com/jsantora/replycore/internal/metrics/storage"
	apperrors "github.com/jsantora/replycore/internal/platform/errors"
)

var tracer = otel.Tracer("github.com/jsantora/replycore/internal/metrics/service")

// CorrectionReader exposes the feedback rows the aggregator consumes.
type CorrectionReader interface {
	ListForWindow(ctx context.Context, tenantID string, from, to time.Time) ([]feedbackdomain.Feedback, error)
	TenantsWithCorrections(ctx context.Context, from, to time.Time) ([]string, error)
}

// Aggregator computes idempotent per-day metric snapshots.
type Aggregator struct {
	corrections CorrectionReader
	snapshots   storage.MetricsStore
	threshold   float64
	clock       func() time.Time
}

// NewAggregator creates an aggregator with the default high-confidence
// threshold.
func NewAggregator(corrections CorrectionReader, snapshots storage.MetricsStore) *Aggregator {
	return &Aggregator{
		corrections: corrections,
		snapshots:   snapshots,
		threshold:   domain.DefaultHighConfidenceThreshold,
		clock:       time.Now,
	}
}

// WithThreshold overrides the high-confidence error threshold.
func (a *Aggregator) WithThreshold(threshold float64) *Aggregator {
	if a != nil && threshold > 0 {
		a.threshold = threshold
	}
	return a
}

// ComputeDailyMetrics aggregates one tenant's corrections for one UTC
// day and upserts the (tenant, date) snapshot. Days with zero corrections
// produce no row; re-running with identical inputs yields identical
// values. Returns the computed snapshot, or a zero snapshot when no
// corrections exist for the day.
func (a *Aggregator) ComputeDailyMetrics(ctx context.Context, tenantID, date string) (domain.Snapshot, error) {
	if a == nil || a.corrections == nil || a.snapshots == nil {
		return domain.Snapshot{}, errors.New("aggregator is not configured")
	}
	if tenantID == "" {
		return domain.Snapshot{}, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}
	dayStart, err := domain.ParseDate(date)
	if err != nil {
		return domain.Snapshot{}, apperrors.Wrap(apperrors.CodeMetricsDateInvalid, "date must be YYYY-MM-DD", err)
	}

	ctx, span := tracer.Start(ctx, "metrics.compute_daily", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("date", date),
	))
	defer span.End()

	corrections, err := a.corrections.ListForWindow(ctx, tenantID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return domain.Snapshot{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read corrections", err)
	}
	span.SetAttributes(attribute.Int("corrections", len(corrections)))
	if len(corrections) == 0 {
		return domain.Snapshot{}, nil
	}

	snapshot := aggregate(tenantID, date, corrections, a.threshold)
	snapshot.ComputedAt = a.clock().UTC()
	if err := a.snapshots.Upsert(ctx, snapshot); err != nil {
		return domain.Snapshot{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "store metric snapshot", err)
	}
	return snapshot, nil
}

// ComputeForDate runs the daily aggregation for every tenant with
// corrections on the given day, returning the tenants processed.
func (a *Aggregator) ComputeForDate(ctx context.Context, date string) ([]string, error) {
	if a == nil || a.corrections == nil || a.snapshots == nil {
		return nil, errors.New("aggregator is not configured")
	}
	dayStart, err := domain.ParseDate(date)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMetricsDateInvalid, "date must be YYYY-MM-DD", err)
	}

	tenants, err := a.corrections.TenantsWithCorrections(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list tenants", err)
	}
	for _, tenantID := range tenants {
		if _, err := a.ComputeDailyMetrics(ctx, tenantID, date); err != nil {
			return nil, err
		}
	}
	return tenants, nil
}

// ListMetrics returns a tenant's snapshots with from <= date <= to, date
// descending.
func (a *Aggregator) ListMetrics(ctx context.Context, tenantID, from, to string) ([]domain.Snapshot, error) {
	if a == nil || a.snapshots == nil {
		return nil, errors.New("aggregator is not configured")
	}
	if tenantID == "" {
		return nil, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}
	for _, date := range []string{from, to} {
		if _, err := domain.ParseDate(date); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMetricsDateInvalid, "date must be YYYY-MM-DD", err)
		}
	}

	snapshots, err := a.snapshots.ListRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list metric snapshots", err)
	}
	return snapshots, nil
}

// GetMetrics returns the snapshot for one (tenant, date).
func (a *Aggregator) GetMetrics(ctx context.Context, tenantID, date string) (domain.Snapshot, error) {
	if a == nil || a.snapshots == nil {
		return domain.Snapshot{}, errors.New("aggregator is not configured")
	}
	if _, err := domain.ParseDate(date); err != nil {
		return domain.Snapshot{}, apperrors.Wrap(apperrors.CodeMetricsDateInvalid, "date must be YYYY-MM-DD", err)
	}

	snapshot, err := a.snapshots.Get(ctx, tenantID, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Snapshot{}, apperrors.New(apperrors.CodeMetricsNotFound, "no metrics for date")
		}
		return domain.Snapshot{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "get metric snapshot", err)
	}
	return snapshot, nil
}

func aggregate(tenantID, date string, corrections []feedbackdomain.Feedback, threshold float64) domain.Snapshot {
	snapshot := domain.Snapshot{
		TenantID:         tenantID,
		Date:             date,
		TotalCorrections: len(corrections),
		CategoryCounts:   make(map[string]int),
	}

	var confidenceSum float64
	for _, fb := range corrections {
		confidenceSum += fb.Original.Confidence
		if fb.Original.Confidence > threshold {
			snapshot.HighConfidenceErrors++
		}
		if fb.Original.Category != "" {
			snapshot.CategoryCounts[fb.Original.Category]++
		}
	}
	snapshot.AvgOriginalConfidence = confidenceSum / float64(len(corrections))
	return snapshot
}
