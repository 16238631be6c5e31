// Package storage defines the persistence interface for metric snapshots.
package storage

import (
	"context"
	"errors"

	"github.com/jsantora/replycore/internal/metrics/domain"
)

// ErrNotFound is returned when no snapshot exists for a (tenant, date).
var ErrNotFound = errors.New("metric snapshot not found")

// MetricsStore persists daily metric snapshots.
type MetricsStore interface {
	// Upsert writes a snapshot, replacing any existing (tenant, date) row.
	Upsert(ctx context.Context, snapshot domain.Snapshot) error

	// Get returns the snapshot for one (tenant, date).
	Get(ctx context.Context, tenantID, date string) (domain.Snapshot, error)

	// ListRange returns snapshots with from <= date <= to, date descending.
	ListRange(ctx context.Context, tenantID, from, to string) ([]domain.Snapshot, error)
}
