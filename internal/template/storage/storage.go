// Package storage defines persistence contracts for business-type templates.
package storage

import (
	"context"
	"errors"

	"github.com/jsantora/replycore/internal/template/domain"
)

var (
	// ErrNotFound indicates a requested template record is missing or inactive.
	ErrNotFound = errors.New("template not found")
	// ErrVersionNotFound indicates a requested historical version is missing.
	ErrVersionNotFound = errors.New("template version not found")
)

// UpsertParams describes one upsert request for a business type.
type UpsertParams struct {
	BusinessType string
	Content      domain.Content
	// AllowCreate permits creating a template for a business type that has
	// no active row. Without it an unknown business type is rejected.
	AllowCreate bool
}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	Template domain.Template
	// Changed is false when the incoming content matched the active row and
	// the upsert was a no-op.
	Changed bool
	// Created is true when a new template row was inserted.
	Created bool
}

// MultiReadResult is the outcome of reading several active templates within
// one consistent snapshot.
type MultiReadResult struct {
	Templates []domain.Template
	// Missing lists every requested business type with no active template,
	// in request order.
	Missing []string
}

// TemplateStore persists business-type templates and their version history.
//
// Upsert performs the read-compare-snapshot-write sequence inside a single
// transaction so no reader observes a template mid-update.
type TemplateStore interface {
	Upsert(ctx context.Context, params UpsertParams) (UpsertResult, error)
	GetActive(ctx context.Context, businessType string) (domain.Template, error)
	GetActiveMany(ctx context.Context, businessTypes []string) (MultiReadResult, error)
	ListActiveBusinessTypes(ctx context.Context) ([]string, error)
	ActiveVersions(ctx context.Context, businessTypes []string) (map[string]int, error)
	History(ctx context.Context, templateID string) ([]domain.Snapshot, error)
	GetVersionContent(ctx context.Context, businessType string, version int) (domain.Content, error)
	Deactivate(ctx context.Context, businessType string) error
}
