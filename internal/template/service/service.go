// Package service exposes admin-facing template operations.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	"github.com/jsantora/replycore/internal/template/domain"
	"github.com/jsantora/replycore/internal/template/storage"
)

var tracer = otel.Tracer("github.com/jsantora/replycore/internal/template/service")

// Service coordinates template mutations and history reads. Authorization
// is the calling layer's responsibility; every operation takes explicit
// identifiers and never consults ambient state.
type Service struct {
	store storage.TemplateStore
}

// New creates a template service.
func New(store storage.TemplateStore) *Service {
	return &Service{store: store}
}

// UpsertTemplate writes new content for a business type. Identical content
// is a no-op; changed content snapshots the prior state and bumps the
// version by exactly one, atomically.
func (s *Service) UpsertTemplate(ctx context.Context, businessType string, content domain.Content, allowCreate bool) (storage.UpsertResult, error) {
	if s == nil || s.store == nil {
		return storage.UpsertResult{}, errors.New("template store is not configured")
	}
	businessType = domain.NormalizeBusinessType(businessType)
	if businessType == "" {
		return storage.UpsertResult{}, apperrors.New(apperrors.CodeTemplateNameEmpty, "business type is required")
	}

	ctx, span := tracer.Start(ctx, "template.upsert", trace.WithAttributes(
		attribute.String("business_type", businessType),
		attribute.Bool("allow_create", allowCreate),
	))
	defer span.End()

	result, err := s.store.Upsert(ctx, storage.UpsertParams{
		BusinessType: businessType,
		Content:      content,
		AllowCreate:  allowCreate,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.UpsertResult{}, apperrors.WithMetadata(
				apperrors.CodeTemplateCreateFlagUnset,
				fmt.Sprintf("no active template for %q; set the create flag to add one", businessType),
				map[string]string{"business_type": businessType},
			)
		}
		return storage.UpsertResult{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "upsert template", err)
	}
	span.SetAttributes(
		attribute.Bool("changed", result.Changed),
		attribute.Int("version", result.Template.Version),
	)
	return result, nil
}

// GetActiveTemplate returns the active template for a business type.
func (s *Service) GetActiveTemplate(ctx context.Context, businessType string) (domain.Template, error) {
	if s == nil || s.store == nil {
		return domain.Template{}, errors.New("template store is not configured")
	}
	record, err := s.store.GetActive(ctx, businessType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Template{}, apperrors.WithMetadata(
				apperrors.CodeTemplateNotFound,
				fmt.Sprintf("no active template for %q", businessType),
				map[string]string{"business_type": businessType},
			)
		}
		return domain.Template{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "get active template", err)
	}
	return record, nil
}

// ListActiveBusinessTypes returns the sorted names of active templates.
func (s *Service) ListActiveBusinessTypes(ctx context.Context) ([]string, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("template store is not configured")
	}
	names, err := s.store.ListActiveBusinessTypes(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list business types", err)
	}
	return names, nil
}

// GetVersionHistory returns a template's snapshots, newest version first.
func (s *Service) GetVersionHistory(ctx context.Context, templateID string) ([]domain.Snapshot, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("template store is not configured")
	}
	snapshots, err := s.store.History(ctx, templateID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "get version history", err)
	}
	return snapshots, nil
}

// RollbackTemplate restores the content a business type had at toVersion as
// a new version. History stays intact; restoring the current content is a
// no-op like any other unchanged upsert.
func (s *Service) RollbackTemplate(ctx context.Context, businessType string, toVersion int) (storage.UpsertResult, error) {
	if s == nil || s.store == nil {
		return storage.UpsertResult{}, errors.New("template store is not configured")
	}
	businessType = domain.NormalizeBusinessType(businessType)
	if businessType == "" {
		return storage.UpsertResult{}, apperrors.New(apperrors.CodeTemplateNameEmpty, "business type is required")
	}
	if toVersion < 1 {
		return storage.UpsertResult{}, apperrors.New(apperrors.CodeTemplateVersionNotFound, "rollback version must be positive")
	}

	ctx, span := tracer.Start(ctx, "template.rollback", trace.WithAttributes(
		attribute.String("business_type", businessType),
		attribute.Int("to_version", toVersion),
	))
	defer span.End()

	content, err := s.store.GetVersionContent(ctx, businessType, toVersion)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return storage.UpsertResult{}, apperrors.WithMetadata(
				apperrors.CodeTemplateNotFound,
				fmt.Sprintf("no active template for %q", businessType),
				map[string]string{"business_type": businessType},
			)
		case errors.Is(err, storage.ErrVersionNotFound):
			return storage.UpsertResult{}, apperrors.WithMetadata(
				apperrors.CodeTemplateVersionNotFound,
				fmt.Sprintf("template %q has no version %d", businessType, toVersion),
				map[string]string{"business_type": businessType},
			)
		}
		return storage.UpsertResult{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read rollback version", err)
	}

	result, err := s.store.Upsert(ctx, storage.UpsertParams{
		BusinessType: businessType,
		Content:      content,
	})
	if err != nil {
		return storage.UpsertResult{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "apply rollback", err)
	}
	return result, nil
}

// DeactivateTemplate soft-deletes the active template for a business type.
func (s *Service) DeactivateTemplate(ctx context.Context, businessType string) error {
	if s == nil || s.store == nil {
		return errors.New("template store is not configured")
	}
	if err := s.store.Deactivate(ctx, businessType); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(
				apperrors.CodeTemplateNotFound,
				fmt.Sprintf("no active template for %q", businessType),
				map[string]string{"business_type": businessType},
			)
		}
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "deactivate template", err)
	}
	return nil
}
