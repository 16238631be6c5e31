// Package service resolves tenants to their merged configuration.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsantora/replycore/internal/merge"
	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	"github.com/jsantora/replycore/internal/profile/domain"
	"github.com/jsantora/replycore/internal/profile/storage"
)

var tracer = otel.Tracer("github.com/jsantora/replycore/internal/profile/service")

// TemplateVersions reads the current active version per business type.
type TemplateVersions interface {
	ActiveVersions(ctx context.Context, businessTypes []string) (map[string]int, error)
}

// Merger produces a merged configuration for an ordered type list.
type Merger interface {
	Merge(ctx context.Context, businessTypes []string) (merge.Configuration, error)
}

// Resolver maps tenants to merged configurations with version-aware
// caching. The cache key embeds every referenced template version, so a
// version bump anywhere in the selection invalidates the entry without any
// explicit invalidation event.
type Resolver struct {
	profiles storage.ProfileStore
	versions TemplateVersions
	merger   Merger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	fingerprint   string
	configuration merge.Configuration
}

// NewResolver creates a resolver over the given collaborators.
func NewResolver(profiles storage.ProfileStore, versions TemplateVersions, merger Merger) *Resolver {
	return &Resolver{
		profiles: profiles,
		versions: versions,
		merger:   merger,
		cache:    make(map[string]cacheEntry),
	}
}

// Resolve returns the merged configuration for a tenant's current selection.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (merge.Configuration, error) {
	if r == nil || r.profiles == nil || r.versions == nil || r.merger == nil {
		return merge.Configuration{}, errors.New("resolver is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return merge.Configuration{}, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}

	ctx, span := tracer.Start(ctx, "profile.resolve", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
	))
	defer span.End()

	profile, err := r.getProfile(ctx, tenantID)
	if err != nil {
		return merge.Configuration{}, err
	}

	versions, err := r.versions.ActiveVersions(ctx, profile.BusinessTypes)
	if err != nil {
		return merge.Configuration{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read template versions", err)
	}
	fingerprint := cacheFingerprint(profile.BusinessTypes, versions)

	r.mu.Lock()
	entry, hit := r.cache[tenantID]
	r.mu.Unlock()
	if hit && entry.fingerprint == fingerprint {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return entry.configuration, nil
	}

	configuration, err := r.merger.Merge(ctx, profile.BusinessTypes)
	if err != nil {
		return merge.Configuration{}, err
	}

	r.mu.Lock()
	r.cache[tenantID] = cacheEntry{fingerprint: fingerprint, configuration: configuration}
	r.mu.Unlock()
	span.SetAttributes(attribute.Bool("cache_hit", false))
	return configuration, nil
}

// UpdateBusinessTypes replaces a tenant's selection. Every name must
// resolve to an active template. The versioned cache key makes the change
// visible without explicit invalidation.
func (r *Resolver) UpdateBusinessTypes(ctx context.Context, tenantID string, businessTypes []string, primaryType string) (domain.Profile, error) {
	if r == nil || r.profiles == nil || r.versions == nil {
		return domain.Profile{}, errors.New("resolver is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.Profile{}, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}

	normalized, primaryType, err := domain.NormalizeSelection(businessTypes, primaryType)
	if err != nil {
		return domain.Profile{}, err
	}

	versions, err := r.versions.ActiveVersions(ctx, normalized)
	if err != nil {
		return domain.Profile{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read template versions", err)
	}
	var unknown []string
	for _, name := range normalized {
		if _, ok := versions[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return domain.Profile{}, apperrors.WithMetadata(
			apperrors.CodeTenantUnknownType,
			fmt.Sprintf("no active template for: %s", strings.Join(unknown, ", ")),
			map[string]string{"missing": strings.Join(unknown, ",")},
		)
	}

	saved, err := r.profiles.Put(ctx, domain.Profile{
		TenantID:      tenantID,
		BusinessTypes: normalized,
		PrimaryType:   primaryType,
	})
	if err != nil {
		return domain.Profile{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "persist tenant profile", err)
	}
	return saved, nil
}

// GetProfile returns a tenant's stored selection.
func (r *Resolver) GetProfile(ctx context.Context, tenantID string) (domain.Profile, error) {
	if r == nil || r.profiles == nil {
		return domain.Profile{}, errors.New("resolver is not configured")
	}
	return r.getProfile(ctx, strings.TrimSpace(tenantID))
}

func (r *Resolver) getProfile(ctx context.Context, tenantID string) (domain.Profile, error) {
	profile, err := r.profiles.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Profile{}, apperrors.WithMetadata(
				apperrors.CodeTenantNotFound,
				fmt.Sprintf("tenant %q has no profile", tenantID),
				map[string]string{"tenant_id": tenantID},
			)
		}
		return domain.Profile{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "get tenant profile", err)
	}
	return profile, nil
}

func cacheFingerprint(businessTypes []string, versions map[string]int) string {
	parts := make([]string, 0, len(businessTypes))
	for _, name := range businessTypes {
		parts = append(parts, fmt.Sprintf("%s@%d", name, versions[name]))
	}
	return strings.Join(parts, "|")
}
