// Package service coordinates correction intake and review over feedback
// storage.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsantora/replycore/internal/feedback/domain"
	"github.com/jsantora/replycore/internal/feedback/filter"
	"github.com/jsantora/replycore/internal/feedback/storage"
	apperrors "github.com/jsantora/replycore/internal/platform/errors"
)

var tracer = otel.Tracer("github.com/jsantora/replycore/internal/feedback/service")

const defaultPageSize = 50

// Service provides correction intake and review operations.
type Service struct {
	store storage.FeedbackStore
}

// New creates a feedback service over the given store.
func New(store storage.FeedbackStore) *Service {
	return &Service{store: store}
}

// SubmitParams carries one tenant correction.
type SubmitParams struct {
	TenantID      string
	EmailID       string
	Original      domain.Classification
	Corrected     domain.Classification
	QualityRating int
	Source        string
}

// SubmitCorrection records a correction as a new pending row. A repeat
// correction for the same email supersedes the prior row without touching
// it.
func (s *Service) SubmitCorrection(ctx context.Context, params SubmitParams) (domain.Feedback, error) {
	if s == nil || s.store == nil {
		return domain.Feedback{}, errors.New("service is not configured")
	}

	tenantID := strings.TrimSpace(params.TenantID)
	if tenantID == "" {
		return domain.Feedback{}, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}
	emailID := strings.TrimSpace(params.EmailID)
	if emailID == "" {
		return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackEmailIDEmpty, "email id is required")
	}
	corrected := domain.NormalizeClassification(params.Corrected)
	if corrected.Category == "" {
		return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackCategoryEmpty, "corrected category is required")
	}
	if params.QualityRating < domain.MinQualityRating || params.QualityRating > domain.MaxQualityRating {
		return domain.Feedback{}, apperrors.WithMetadata(
			apperrors.CodeFeedbackRatingOutOfRange,
			fmt.Sprintf("quality rating must be between %d and %d", domain.MinQualityRating, domain.MaxQualityRating),
			map[string]string{"rating": strconv.Itoa(params.QualityRating)},
		)
	}

	ctx, span := tracer.Start(ctx, "feedback.submit_correction", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("source", params.Source),
	))
	defer span.End()

	fb, err := s.store.Submit(ctx, domain.Feedback{
		TenantID:      tenantID,
		EmailID:       emailID,
		Original:      domain.NormalizeClassification(params.Original),
		Corrected:     corrected,
		QualityRating: params.QualityRating,
		Source:        strings.TrimSpace(params.Source),
	})
	if err != nil {
		return domain.Feedback{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "submit correction", err)
	}
	span.SetAttributes(attribute.Bool("superseded_prior", fb.SupersedesID != ""))
	return fb, nil
}

// ReviewParams carries one review decision.
type ReviewParams struct {
	TenantID   string
	FeedbackID string
	NewStatus  domain.Status
	ReviewerID string
	Notes      string
}

// ReviewCorrection moves a pending row to approved or rejected. The
// approved-to-used transition belongs to the exporter and is rejected
// here.
func (s *Service) ReviewCorrection(ctx context.Context, params ReviewParams) (domain.Feedback, error) {
	if s == nil || s.store == nil {
		return domain.Feedback{}, errors.New("service is not configured")
	}

	tenantID := strings.TrimSpace(params.TenantID)
	if tenantID == "" {
		return domain.Feedback{}, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}
	reviewerID := strings.TrimSpace(params.ReviewerID)
	if reviewerID == "" {
		return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackReviewerEmpty, "reviewer id is required")
	}
	if params.NewStatus != domain.StatusApproved && params.NewStatus != domain.StatusRejected {
		return domain.Feedback{}, apperrors.WithMetadata(
			apperrors.CodeFeedbackInvalidStatus,
			fmt.Sprintf("review status must be %q or %q", domain.StatusApproved, domain.StatusRejected),
			map[string]string{"status": string(params.NewStatus)},
		)
	}

	ctx, span := tracer.Start(ctx, "feedback.review_correction", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("feedback_id", params.FeedbackID),
		attribute.String("new_status", string(params.NewStatus)),
	))
	defer span.End()

	current, err := s.store.Get(ctx, tenantID, params.FeedbackID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackNotFound, "feedback not found")
		}
		return domain.Feedback{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "get feedback", err)
	}
	if !current.Status.CanTransitionTo(params.NewStatus) {
		code := apperrors.CodeFeedbackInvalidTransition
		if current.Status == domain.StatusUsed {
			code = apperrors.CodeFeedbackAlreadyUsed
		}
		return domain.Feedback{}, apperrors.WithMetadata(
			code,
			fmt.Sprintf("cannot move feedback from %q to %q", current.Status, params.NewStatus),
			map[string]string{"from": string(current.Status), "to": string(params.NewStatus)},
		)
	}

	fb, err := s.store.Transition(ctx, storage.TransitionParams{
		TenantID:   tenantID,
		FeedbackID: params.FeedbackID,
		From:       current.Status,
		To:         params.NewStatus,
		ReviewerID: reviewerID,
		Notes:      strings.TrimSpace(params.Notes),
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackNotFound, "feedback not found")
		case errors.Is(err, storage.ErrStatusConflict):
			return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackConcurrentReview, "feedback was reviewed concurrently")
		}
		return domain.Feedback{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "transition feedback", err)
	}
	return fb, nil
}

// GetFeedback returns one row scoped to a tenant.
func (s *Service) GetFeedback(ctx context.Context, tenantID, feedbackID string) (domain.Feedback, error) {
	if s == nil || s.store == nil {
		return domain.Feedback{}, errors.New("service is not configured")
	}

	fb, err := s.store.Get(ctx, strings.TrimSpace(tenantID), feedbackID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Feedback{}, apperrors.New(apperrors.CodeFeedbackNotFound, "feedback not found")
		}
		return domain.Feedback{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "get feedback", err)
	}
	return fb, nil
}

// ListResult is one page of feedback rows.
type ListResult struct {
	Items         []domain.Feedback
	NextPageToken string
}

// ListFeedback returns a filtered page of a tenant's rows, newest first.
// The filter uses AIP-160 syntax over status, rating, category,
// original_category, source, email_id and created_at.
func (s *Service) ListFeedback(ctx context.Context, tenantID, filterStr string, pageSize int, pageToken string) (ListResult, error) {
	if s == nil || s.store == nil {
		return ListResult{}, errors.New("service is not configured")
	}

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ListResult{}, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}
	cond, err := filter.Parse(filterStr)
	if err != nil {
		return ListResult{}, apperrors.Wrap(apperrors.CodeFeedbackFilterInvalid, "invalid filter expression", err)
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	offset, err := decodePageToken(pageToken)
	if err != nil {
		return ListResult{}, apperrors.Wrap(apperrors.CodeFeedbackFilterInvalid, "invalid page token", err)
	}

	ctx, span := tracer.Start(ctx, "feedback.list", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	// Over-fetch by one row to learn whether a next page exists.
	items, err := s.store.List(ctx, storage.ListParams{
		TenantID:  tenantID,
		Condition: cond,
		Limit:     pageSize + 1,
		Offset:    offset,
	})
	if err != nil {
		return ListResult{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "list feedback", err)
	}

	result := ListResult{Items: items}
	if len(items) > pageSize {
		result.Items = items[:pageSize]
		result.NextPageToken = encodePageToken(offset + pageSize)
	}
	return result, nil
}

func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("decode page token: %w", err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("malformed page token")
	}
	return offset, nil
}
