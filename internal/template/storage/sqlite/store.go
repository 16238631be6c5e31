// Package sqlite provides a SQLite-backed template storage implementation.
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

	"github.com/jsantora/replycore/internal/platform/id"
	sqlitemigrate "github.com/jsantora/replycore/internal/platform/storage/sqlitemigrate"
	"github.com/jsantora/replycore/internal/template/domain"
	"github.com/jsantora/replycore/internal/template/storage"
	"github.com/jsantora/replycore/internal/template/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists business-type templates in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
	newID func() (string, error)
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite template store and applies embedded migrations.
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

// contentColumns holds the JSON-encoded content fields of one row.
type contentColumns struct {
	inquiryTypes  string
	protocolText  string
	specialRules  string
	upsellPrompts string
}

func encodeContent(content domain.Content) (contentColumns, error) {
	inquiryTypes, err := json.Marshal(content.InquiryTypes)
	if err != nil {
		return contentColumns{}, fmt.Errorf("encode inquiry types: %w", err)
	}
	specialRules, err := json.Marshal(content.SpecialRules)
	if err != nil {
		return contentColumns{}, fmt.Errorf("encode special rules: %w", err)
	}
	upsellPrompts, err := json.Marshal(content.UpsellPrompts)
	if err != nil {
		return contentColumns{}, fmt.Errorf("encode upsell prompts: %w", err)
	}
	return contentColumns{
		inquiryTypes:  string(inquiryTypes),
		protocolText:  content.ProtocolText,
		specialRules:  string(specialRules),
		upsellPrompts: string(upsellPrompts),
	}, nil
}

func decodeContent(columns contentColumns) (domain.Content, error) {
	content := domain.Content{ProtocolText: columns.protocolText}
	if err := json.Unmarshal([]byte(columns.inquiryTypes), &content.InquiryTypes); err != nil {
		return domain.Content{}, fmt.Errorf("decode inquiry types: %w", err)
	}
	if err := json.Unmarshal([]byte(columns.specialRules), &content.SpecialRules); err != nil {
		return domain.Content{}, fmt.Errorf("decode special rules: %w", err)
	}
	if err := json.Unmarshal([]byte(columns.upsellPrompts), &content.UpsellPrompts); err != nil {
		return domain.Content{}, fmt.Errorf("decode upsell prompts: %w", err)
	}
	return content, nil
}

const activeTemplateColumns = `id, business_type, version,
       inquiry_types_json, protocol_text, special_rules_json, upsell_prompts_json,
       created_at, updated_at`

func scanTemplate(scanner interface{ Scan(...any) error }) (domain.Template, error) {
	var record domain.Template
	var columns contentColumns
	var createdAt, updatedAt int64
	err := scanner.Scan(
		&record.ID,
		&record.BusinessType,
		&record.Version,
		&columns.inquiryTypes,
		&columns.protocolText,
		&columns.specialRules,
		&columns.upsellPrompts,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Template{}, err
	}
	content, err := decodeContent(columns)
	if err != nil {
		return domain.Template{}, err
	}
	record.Content = content
	record.Active = true
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// Upsert compares the incoming content against the active row and, when it
// differs, snapshots the current state and bumps the version. The whole
// sequence runs in one transaction.
func (s *Store) Upsert(ctx context.Context, params storage.UpsertParams) (storage.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.UpsertResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.UpsertResult{}, fmt.Errorf("storage is not configured")
	}
	businessType := domain.NormalizeBusinessType(params.BusinessType)
	if businessType == "" {
		return storage.UpsertResult{}, fmt.Errorf("business type is required")
	}
	content := domain.NormalizeContent(params.Content)
	now := s.clock().UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.UpsertResult{}, fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+activeTemplateColumns+`
		   FROM business_templates
		  WHERE business_type = ? AND active = 1`,
		businessType,
	)
	current, err := scanTemplate(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if !params.AllowCreate {
			return storage.UpsertResult{}, storage.ErrNotFound
		}
		created, err := s.insertTemplate(ctx, tx, businessType, content, now)
		if err != nil {
			return storage.UpsertResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return storage.UpsertResult{}, fmt.Errorf("commit template create: %w", err)
		}
		return storage.UpsertResult{Template: created, Changed: true, Created: true}, nil
	case err != nil:
		return storage.UpsertResult{}, fmt.Errorf("read active template: %w", err)
	}

	if domain.ContentEquals(current.Content, content) {
		// Idempotent no-op: version unchanged, no snapshot written.
		return storage.UpsertResult{Template: current}, nil
	}

	if err := s.insertSnapshot(ctx, tx, current, now); err != nil {
		return storage.UpsertResult{}, err
	}

	columns, err := encodeContent(content)
	if err != nil {
		return storage.UpsertResult{}, err
	}
	updated := current
	updated.Version = current.Version + 1
	updated.Content = content
	updated.UpdatedAt = now

	result, err := tx.ExecContext(ctx,
		`UPDATE business_templates
		    SET version = ?,
		        inquiry_types_json = ?,
		        protocol_text = ?,
		        special_rules_json = ?,
		        upsell_prompts_json = ?,
		        updated_at = ?
		  WHERE id = ? AND version = ?`,
		updated.Version,
		columns.inquiryTypes,
		columns.protocolText,
		columns.specialRules,
		columns.upsellPrompts,
		toMillis(now),
		current.ID,
		current.Version,
	)
	if err != nil {
		return storage.UpsertResult{}, fmt.Errorf("update template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.UpsertResult{}, fmt.Errorf("update template rows: %w", err)
	}
	if affected != 1 {
		return storage.UpsertResult{}, fmt.Errorf("template %s changed concurrently", businessType)
	}
	if err := tx.Commit(); err != nil {
		return storage.UpsertResult{}, fmt.Errorf("commit template update: %w", err)
	}
	return storage.UpsertResult{Template: updated, Changed: true}, nil
}

func (s *Store) insertTemplate(ctx context.Context, tx *sql.Tx, businessType string, content domain.Content, now time.Time) (domain.Template, error) {
	templateID, err := s.newID()
	if err != nil {
		return domain.Template{}, fmt.Errorf("generate template id: %w", err)
	}
	columns, err := encodeContent(content)
	if err != nil {
		return domain.Template{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO business_templates (
		   id, business_type, version,
		   inquiry_types_json, protocol_text, special_rules_json, upsell_prompts_json,
		   active, created_at, updated_at
		 ) VALUES (?, ?, 1, ?, ?, ?, ?, 1, ?, ?)`,
		templateID,
		businessType,
		columns.inquiryTypes,
		columns.protocolText,
		columns.specialRules,
		columns.upsellPrompts,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return domain.Template{}, fmt.Errorf("insert template: %w", err)
	}
	return domain.Template{
		ID:           templateID,
		BusinessType: businessType,
		Version:      1,
		Content:      content,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Store) insertSnapshot(ctx context.Context, tx *sql.Tx, current domain.Template, now time.Time) error {
	snapshotID, err := s.newID()
	if err != nil {
		return fmt.Errorf("generate snapshot id: %w", err)
	}
	columns, err := encodeContent(current.Content)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO business_template_snapshots (
		   id, template_id, version,
		   inquiry_types_json, protocol_text, special_rules_json, upsell_prompts_json,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshotID,
		current.ID,
		current.Version,
		columns.inquiryTypes,
		columns.protocolText,
		columns.specialRules,
		columns.upsellPrompts,
		toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetActive returns the active template for one business type.
func (s *Store) GetActive(ctx context.Context, businessType string) (domain.Template, error) {
	if err := ctx.Err(); err != nil {
		return domain.Template{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Template{}, fmt.Errorf("storage is not configured")
	}
	businessType = domain.NormalizeBusinessType(businessType)
	if businessType == "" {
		return domain.Template{}, fmt.Errorf("business type is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+activeTemplateColumns+`
		   FROM business_templates
		  WHERE business_type = ? AND active = 1`,
		businessType,
	)
	record, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Template{}, storage.ErrNotFound
		}
		return domain.Template{}, fmt.Errorf("get active template: %w", err)
	}
	return record, nil
}

// GetActiveMany reads every requested active template within one consistent
// snapshot. Missing business types are reported, not partially merged.
func (s *Store) GetActiveMany(ctx context.Context, businessTypes []string) (storage.MultiReadResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.MultiReadResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MultiReadResult{}, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return storage.MultiReadResult{}, fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result := storage.MultiReadResult{}
	for _, businessType := range businessTypes {
		businessType = domain.NormalizeBusinessType(businessType)
		row := tx.QueryRowContext(ctx,
			`SELECT `+activeTemplateColumns+`
			   FROM business_templates
			  WHERE business_type = ? AND active = 1`,
			businessType,
		)
		record, err := scanTemplate(row)
		if errors.Is(err, sql.ErrNoRows) {
			result.Missing = append(result.Missing, businessType)
			continue
		}
		if err != nil {
			return storage.MultiReadResult{}, fmt.Errorf("read template %s: %w", businessType, err)
		}
		result.Templates = append(result.Templates, record)
	}
	return result, nil
}

// ListActiveBusinessTypes returns the sorted names of active templates.
func (s *Store) ListActiveBusinessTypes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT business_type
		   FROM business_templates
		  WHERE active = 1
		  ORDER BY business_type ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list business types: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list business types: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list business types: %w", err)
	}
	return names, nil
}

// ActiveVersions returns the current version per requested business type.
// Types with no active template are absent from the result.
func (s *Store) ActiveVersions(ctx context.Context, businessTypes []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	versions := make(map[string]int, len(businessTypes))
	for _, businessType := range businessTypes {
		businessType = domain.NormalizeBusinessType(businessType)
		var version int
		err := s.sqlDB.QueryRowContext(ctx,
			`SELECT version FROM business_templates WHERE business_type = ? AND active = 1`,
			businessType,
		).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read template version %s: %w", businessType, err)
		}
		versions[businessType] = version
	}
	return versions, nil
}

// History returns the snapshots of one template, newest version first.
func (s *Store) History(ctx context.Context, templateID string) ([]domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return nil, fmt.Errorf("template id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, template_id, version,
		        inquiry_types_json, protocol_text, special_rules_json, upsell_prompts_json,
		        created_at
		   FROM business_template_snapshots
		  WHERE template_id = ?
		  ORDER BY version DESC`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		var snapshot domain.Snapshot
		var columns contentColumns
		var createdAt int64
		if err := rows.Scan(
			&snapshot.ID,
			&snapshot.TemplateID,
			&snapshot.Version,
			&columns.inquiryTypes,
			&columns.protocolText,
			&columns.specialRules,
			&columns.upsellPrompts,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		content, err := decodeContent(columns)
		if err != nil {
			return nil, err
		}
		snapshot.Content = content
		snapshot.CreatedAt = fromMillis(createdAt)
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// GetVersionContent returns the content a business type had at a version,
// reading the active row for the current version and snapshots otherwise.
func (s *Store) GetVersionContent(ctx context.Context, businessType string, version int) (domain.Content, error) {
	record, err := s.GetActive(ctx, businessType)
	if err != nil {
		return domain.Content{}, err
	}
	if version == record.Version {
		return record.Content, nil
	}

	var columns contentColumns
	err = s.sqlDB.QueryRowContext(ctx,
		`SELECT inquiry_types_json, protocol_text, special_rules_json, upsell_prompts_json
		   FROM business_template_snapshots
		  WHERE template_id = ? AND version = ?`,
		record.ID,
		version,
	).Scan(&columns.inquiryTypes, &columns.protocolText, &columns.specialRules, &columns.upsellPrompts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Content{}, storage.ErrVersionNotFound
		}
		return domain.Content{}, fmt.Errorf("read snapshot content: %w", err)
	}
	return decodeContent(columns)
}

// Deactivate soft-deletes the active template for a business type. History
// rows are never removed.
func (s *Store) Deactivate(ctx context.Context, businessType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	businessType = domain.NormalizeBusinessType(businessType)
	if businessType == "" {
		return fmt.Errorf("business type is required")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE business_templates SET active = 0, updated_at = ? WHERE business_type = ? AND active = 1`,
		toMillis(s.clock().UTC()),
		businessType,
	)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate template rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.TemplateStore = (*Store)(nil)
