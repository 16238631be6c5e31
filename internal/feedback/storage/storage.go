// Package storage defines the persistence interface for classification
// feedback.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jsantora/replycore/internal/feedback/domain"
	"github.com/jsantora/replycore/internal/feedback/filter"
)

// ErrNotFound is returned when a feedback row does not exist.
var ErrNotFound = errors.New("feedback not found")

// ErrStatusConflict is returned when a status transition loses a race or
// targets a row whose current status does not match the expected one.
var ErrStatusConflict = errors.New("feedback status conflict")

// ListParams selects a page of feedback rows for a tenant.
type ListParams struct {
	TenantID  string
	Condition filter.SQLCondition
	Limit     int
	Offset    int
}

// TransitionParams moves one row along the review state machine. The
// update only applies when the row's current status equals From.
type TransitionParams struct {
	TenantID   string
	FeedbackID string
	From       domain.Status
	To         domain.Status
	ReviewerID string
	Notes      string
}

// FeedbackStore persists classification feedback rows.
type FeedbackStore interface {
	// Submit appends a new pending row. When an earlier row exists for
	// the same (tenant, email), the new row's SupersedesID points at the
	// most recent one.
	Submit(ctx context.Context, fb domain.Feedback) (domain.Feedback, error)

	// Get returns one row scoped to a tenant.
	Get(ctx context.Context, tenantID, feedbackID string) (domain.Feedback, error)

	// Transition applies a compare-and-set status change.
	Transition(ctx context.Context, params TransitionParams) (domain.Feedback, error)

	// List returns rows matching the condition, newest first.
	List(ctx context.Context, params ListParams) ([]domain.Feedback, error)

	// ListForWindow returns a tenant's rows created in [from, to).
	ListForWindow(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Feedback, error)

	// TenantsWithCorrections returns tenant ids with at least one row
	// created in [from, to).
	TenantsWithCorrections(ctx context.Context, from, to time.Time) ([]string, error)

	// ExportApproved returns approved rows with rating >= minQuality,
	// newest first, flipping each returned row to used in the same
	// transaction.
	ExportApproved(ctx context.Context, tenantID string, minQuality, limit int) ([]domain.Feedback, error)
}
