// Package sqlite provides a SQLite-backed feedback storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jsantora/replycore/internal/feedback/domain"
	"github.com/jsantora/replycore/internal/feedback/storage"
	"github.com/jsantora/replycore/internal/feedback/storage/sqlite/migrations"
	"github.com/jsantora/replycore/internal/platform/id"
	sqlitemigrate "github.com/jsantora/replycore/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists classification feedback in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
	newID func() (string, error)
}

var _ storage.FeedbackStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite feedback store and applies embedded migrations.
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
	return &Store{sqlDB: sqlDB, clock: time.Now, newID: id.NewID}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetClock overrides the time source. Used by tests that need rows at
// controlled timestamps.
func (s *Store) SetClock(clock func() time.Time) {
	if s != nil && clock != nil {
		s.clock = clock
	}
}

const feedbackColumns = `id, tenant_id, email_id,
	original_category, original_subcategory, original_confidence, original_ai_can_reply,
	corrected_category, corrected_subcategory, corrected_ai_can_reply, corrected_reason,
	quality_rating, status, source, reviewer_id, review_notes, supersedes_id,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row rowScanner) (domain.Feedback, error) {
	var fb domain.Feedback
	var originalCanReply, correctedCanReply int64
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(
		&fb.ID, &fb.TenantID, &fb.EmailID,
		&fb.Original.Category, &fb.Original.Subcategory, &fb.Original.Confidence, &originalCanReply,
		&fb.Corrected.Category, &fb.Corrected.Subcategory, &correctedCanReply, &fb.Corrected.Reason,
		&fb.QualityRating, &status, &fb.Source, &fb.ReviewerID, &fb.ReviewNotes, &fb.SupersedesID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Feedback{}, err
	}
	fb.Original.AICanReply = originalCanReply != 0
	fb.Corrected.AICanReply = correctedCanReply != 0
	fb.Status = domain.Status(status)
	fb.CreatedAt = fromMillis(createdAt)
	fb.UpdatedAt = fromMillis(updatedAt)
	return fb, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

// Submit appends a new pending row, pointing SupersedesID at the most
// recent prior row for the same (tenant, email) when one exists.
func (s *Store) Submit(ctx context.Context, fb domain.Feedback) (domain.Feedback, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Feedback{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Feedback{}, err
	}

	feedbackID, err := s.newID()
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("generate feedback id: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var supersedesID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM classification_feedback
		WHERE tenant_id = ? AND email_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, fb.TenantID, fb.EmailID).Scan(&supersedesID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Feedback{}, fmt.Errorf("find prior correction: %w", err)
	}

	now := s.clock().UTC()
	fb.ID = feedbackID
	fb.Status = domain.StatusPending
	fb.SupersedesID = supersedesID
	fb.ReviewerID = ""
	fb.ReviewNotes = ""
	fb.CreatedAt = now
	fb.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO classification_feedback (`+feedbackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		fb.ID, fb.TenantID, fb.EmailID,
		fb.Original.Category, fb.Original.Subcategory, fb.Original.Confidence, boolToInt(fb.Original.AICanReply),
		fb.Corrected.Category, fb.Corrected.Subcategory, boolToInt(fb.Corrected.AICanReply), fb.Corrected.Reason,
		fb.QualityRating, string(fb.Status), fb.Source, fb.ReviewerID, fb.ReviewNotes, fb.SupersedesID,
		toMillis(now), toMillis(now),
	)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Feedback{}, fmt.Errorf("commit tx: %w", err)
	}
	return fb, nil
}

// Get returns one row scoped to a tenant.
func (s *Store) Get(ctx context.Context, tenantID, feedbackID string) (domain.Feedback, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Feedback{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Feedback{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM classification_feedback
		WHERE tenant_id = ? AND id = ?
	`, tenantID, feedbackID)
	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Feedback{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("get feedback: %w", err)
	}
	return fb, nil
}

// Transition applies a compare-and-set status change. A zero-row update
// is re-read to distinguish a missing row from a status race.
func (s *Store) Transition(ctx context.Context, params storage.TransitionParams) (domain.Feedback, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Feedback{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Feedback{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE classification_feedback
		SET status = ?, reviewer_id = ?, review_notes = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`,
		string(params.To), params.ReviewerID, params.Notes, toMillis(now),
		params.TenantID, params.FeedbackID, string(params.From),
	)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT 1 FROM classification_feedback WHERE tenant_id = ? AND id = ?
		`, params.TenantID, params.FeedbackID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Feedback{}, storage.ErrNotFound
		}
		if err != nil {
			return domain.Feedback{}, fmt.Errorf("check feedback: %w", err)
		}
		return domain.Feedback{}, storage.ErrStatusConflict
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM classification_feedback
		WHERE tenant_id = ? AND id = ?
	`, params.TenantID, params.FeedbackID)
	fb, err := scanFeedback(row)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("read updated feedback: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Feedback{}, fmt.Errorf("commit tx: %w", err)
	}
	return fb, nil
}

// List returns rows matching the condition, newest first.
func (s *Store) List(ctx context.Context, params storage.ListParams) ([]domain.Feedback, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + feedbackColumns + `
		FROM classification_feedback
		WHERE tenant_id = ?`
	args := []any{params.TenantID}
	if params.Condition.Clause != "" {
		query += " AND " + params.Condition.Clause
		args = append(args, params.Condition.Params...)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if params.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	return collectFeedback(rows)
}

// ListForWindow returns a tenant's rows created in [from, to).
func (s *Store) ListForWindow(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Feedback, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT `+feedbackColumns+`
		FROM classification_feedback
		WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`, tenantID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("list feedback window: %w", err)
	}
	defer rows.Close()

	return collectFeedback(rows)
}

// TenantsWithCorrections returns tenant ids with rows created in [from, to).
func (s *Store) TenantsWithCorrections(ctx context.Context, from, to time.Time) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT DISTINCT tenant_id
		FROM classification_feedback
		WHERE created_at >= ? AND created_at < ?
		ORDER BY tenant_id ASC
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// ExportApproved returns approved rows with rating >= minQuality, newest
// first, flipping each returned row to used inside the same transaction.
func (s *Store) ExportApproved(ctx context.Context, tenantID string, minQuality, limit int) ([]domain.Feedback, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT ` + feedbackColumns + `
		FROM classification_feedback
		WHERE tenant_id = ? AND status = ? AND quality_rating >= ?
		ORDER BY created_at DESC, id DESC`
	args := []any{tenantID, string(domain.StatusApproved), minQuality}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select approved feedback: %w", err)
	}
	exported, err := collectFeedback(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	for i, fb := range exported {
		result, err := tx.ExecContext(ctx, `
			UPDATE classification_feedback
			SET status = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ? AND status = ?
		`, string(domain.StatusUsed), toMillis(now), tenantID, fb.ID, string(domain.StatusApproved))
		if err != nil {
			return nil, fmt.Errorf("mark feedback used: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return nil, storage.ErrStatusConflict
		}
		exported[i].Status = domain.StatusUsed
		exported[i].UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return exported, nil
}

func collectFeedback(rows *sql.Rows) ([]domain.Feedback, error) {
	var items []domain.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		items = append(items, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return items, nil
}
