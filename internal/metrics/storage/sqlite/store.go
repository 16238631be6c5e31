// Package sqlite provides a SQLite-backed metrics storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jsantora/replycore/internal/metrics/domain"
	"github.com/jsantora/replycore/internal/metrics/storage"
	"github.com/jsantora/replycore/internal/metrics/storage/sqlite/migrations"
	sqlitemigrate "github.com/jsantora/replycore/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists daily metric snapshots in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.MetricsStore = (*Store)(nil)

// Open opens a SQLite metrics store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Upsert writes a snapshot, replacing any existing (tenant, date) row.
func (s *Store) Upsert(ctx context.Context, snapshot domain.Snapshot) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	counts, err := json.Marshal(snapshot.CategoryCounts)
	if err != nil {
		return fmt.Errorf("encode category counts: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO performance_metrics (
			tenant_id, date, total_corrections, avg_original_confidence,
			high_confidence_errors, category_counts_json, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, date) DO UPDATE SET
			total_corrections = excluded.total_corrections,
			avg_original_confidence = excluded.avg_original_confidence,
			high_confidence_errors = excluded.high_confidence_errors,
			category_counts_json = excluded.category_counts_json,
			computed_at = excluded.computed_at
	`,
		snapshot.TenantID, snapshot.Date, snapshot.TotalCorrections,
		snapshot.AvgOriginalConfidence, snapshot.HighConfidenceErrors,
		string(counts), snapshot.ComputedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert metric snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `tenant_id, date, total_corrections,
	avg_original_confidence, high_confidence_errors, category_counts_json, computed_at`

func scanSnapshot(row interface{ Scan(...any) error }) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	var counts string
	var computedAt int64
	err := row.Scan(
		&snapshot.TenantID, &snapshot.Date, &snapshot.TotalCorrections,
		&snapshot.AvgOriginalConfidence, &snapshot.HighConfidenceErrors,
		&counts, &computedAt,
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(counts), &snapshot.CategoryCounts); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode category counts: %w", err)
	}
	snapshot.ComputedAt = time.UnixMilli(computedAt).UTC()
	return snapshot, nil
}

// Get returns the snapshot for one (tenant, date).
func (s *Store) Get(ctx context.Context, tenantID, date string) (domain.Snapshot, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Snapshot{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM performance_metrics
		WHERE tenant_id = ? AND date = ?
	`, tenantID, date)
	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get metric snapshot: %w", err)
	}
	return snapshot, nil
}

// ListRange returns snapshots with from <= date <= to, date descending.
func (s *Store) ListRange(ctx context.Context, tenantID, from, to string) ([]domain.Snapshot, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM performance_metrics
		WHERE tenant_id = ? AND date >= ? AND date <= ?
		ORDER BY date DESC
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list metric snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metric snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric snapshots: %w", err)
	}
	return snapshots, nil
}
