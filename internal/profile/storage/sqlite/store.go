// Package sqlite provides a SQLite-backed tenant profile store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	sqlitemigrate "github.com/jsantora/replycore/internal/platform/storage/sqlitemigrate"
	"github.com/jsantora/replycore/internal/profile/domain"
	"github.com/jsantora/replycore/internal/profile/storage"
	"github.com/jsantora/replycore/internal/profile/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists tenant profiles in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite profile store and applies embedded migrations.
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
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get returns one tenant profile.
func (s *Store) Get(ctx context.Context, tenantID string) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Profile{}, fmt.Errorf("storage is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.Profile{}, fmt.Errorf("tenant id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT tenant_id, business_types_json, primary_type, cache_generation, created_at, updated_at
		   FROM tenant_profiles
		  WHERE tenant_id = ?`,
		tenantID,
	)

	var profile domain.Profile
	var typesJSON string
	var createdAt, updatedAt int64
	err := row.Scan(
		&profile.TenantID,
		&typesJSON,
		&profile.PrimaryType,
		&profile.CacheGeneration,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, storage.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("get tenant profile: %w", err)
	}
	if err := json.Unmarshal([]byte(typesJSON), &profile.BusinessTypes); err != nil {
		return domain.Profile{}, fmt.Errorf("decode business types: %w", err)
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

// Put inserts or replaces a tenant's profile. An unchanged selection leaves
// the row as it is; a changed selection bumps the cache generation.
func (s *Store) Put(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Profile{}, fmt.Errorf("storage is not configured")
	}
	profile.TenantID = strings.TrimSpace(profile.TenantID)
	if profile.TenantID == "" {
		return domain.Profile{}, fmt.Errorf("tenant id is required")
	}
	if len(profile.BusinessTypes) == 0 {
		return domain.Profile{}, fmt.Errorf("business types are required")
	}

	typesJSON, err := json.Marshal(profile.BusinessTypes)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("encode business types: %w", err)
	}
	now := s.clock().UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("begin profile transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := s.getInTx(ctx, tx, profile.TenantID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		profile.CacheGeneration = 0
		profile.CreatedAt = now
		profile.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tenant_profiles (tenant_id, business_types_json, primary_type, cache_generation, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			profile.TenantID,
			string(typesJSON),
			profile.PrimaryType,
			profile.CacheGeneration,
			toMillis(now),
			toMillis(now),
		)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("insert tenant profile: %w", err)
		}
	case err != nil:
		return domain.Profile{}, err
	default:
		if slices.Equal(current.BusinessTypes, profile.BusinessTypes) && current.PrimaryType == profile.PrimaryType {
			return current, tx.Commit()
		}
		profile.CacheGeneration = current.CacheGeneration + 1
		profile.CreatedAt = current.CreatedAt
		profile.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE tenant_profiles
			    SET business_types_json = ?, primary_type = ?, cache_generation = ?, updated_at = ?
			  WHERE tenant_id = ?`,
			string(typesJSON),
			profile.PrimaryType,
			profile.CacheGeneration,
			toMillis(now),
			profile.TenantID,
		)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("update tenant profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Profile{}, fmt.Errorf("commit tenant profile: %w", err)
	}
	return profile, nil
}

func (s *Store) getInTx(ctx context.Context, tx *sql.Tx, tenantID string) (domain.Profile, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT tenant_id, business_types_json, primary_type, cache_generation, created_at, updated_at
		   FROM tenant_profiles
		  WHERE tenant_id = ?`,
		tenantID,
	)
	var profile domain.Profile
	var typesJSON string
	var createdAt, updatedAt int64
	err := row.Scan(
		&profile.TenantID,
		&typesJSON,
		&profile.PrimaryType,
		&profile.CacheGeneration,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, storage.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("get tenant profile: %w", err)
	}
	if err := json.Unmarshal([]byte(typesJSON), &profile.BusinessTypes); err != nil {
		return domain.Profile{}, fmt.Errorf("decode business types: %w", err)
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

var _ storage.ProfileStore = (*Store)(nil)
