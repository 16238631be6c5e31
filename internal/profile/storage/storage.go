// Package storage defines persistence contracts for tenant profiles.
package storage

import (
	"context"
	"errors"

	"github.com/jsantora/replycore/internal/profile/domain"
)

// ErrNotFound indicates a requested tenant profile is missing.
var ErrNotFound = errors.New("tenant profile not found")

// ProfileStore persists tenant business-type selections.
type ProfileStore interface {
	Get(ctx context.Context, tenantID string) (domain.Profile, error)
	// Put inserts or replaces a tenant's profile, bumping CacheGeneration
	// when the selection changed.
	Put(ctx context.Context, profile domain.Profile) (domain.Profile, error)
}
