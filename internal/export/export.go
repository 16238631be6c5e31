// Package export produces vetted training examples from approved
// feedback.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsantora/replycore/internal/feedback/domain"
	apperrors "github.com/jsantora/replycore/internal/platform/errors"
)

var tracer = otel.Tracer("github.com/jsantora/replycore/internal/export")

// DefaultMinQuality is the default rating floor for exported examples.
const DefaultMinQuality = 3

// TrainingExample is one (prompt, label) pair handed to a fine-tuning
// pipeline. The prompt references the source email; the pipeline joins
// it with message content outside this system.
type TrainingExample struct {
	Prompt   string            `json:"prompt"`
	Label    string            `json:"label"`
	Metadata map[string]string `json:"metadata"`
}

// ApprovedExporter drains approved feedback rows, flipping each exported
// row to used in the same transaction.
type ApprovedExporter interface {
	ExportApproved(ctx context.Context, tenantID string, minQuality, limit int) ([]domain.Feedback, error)
}

// Exporter turns approved corrections into training examples.
type Exporter struct {
	store      ApprovedExporter
	minQuality int
}

// NewExporter creates an exporter with the default quality floor.
func NewExporter(store ApprovedExporter) *Exporter {
	return &Exporter{store: store, minQuality: DefaultMinQuality}
}

// WithMinQuality overrides the default rating floor.
func (e *Exporter) WithMinQuality(minQuality int) *Exporter {
	if e != nil && minQuality >= domain.MinQualityRating && minQuality <= domain.MaxQualityRating {
		e.minQuality = minQuality
	}
	return e
}

// ExportTrainingData returns training examples from approved rows with
// rating >= minQuality, newest first. Each exported row moves to used as
// part of the same transaction, so re-running returns nothing until
// fresh approvals arrive. Pass minQuality 0 for the configured default.
func (e *Exporter) ExportTrainingData(ctx context.Context, tenantID string, minQuality, limit int) ([]TrainingExample, error) {
	if e == nil || e.store == nil {
		return nil, errors.New("exporter is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, apperrors.New(apperrors.CodeTenantIDEmpty, "tenant id is required")
	}
	if minQuality == 0 {
		minQuality = e.minQuality
	}
	if minQuality < domain.MinQualityRating || minQuality > domain.MaxQualityRating {
		return nil, apperrors.WithMetadata(
			apperrors.CodeExportMinQualityInvalid,
			fmt.Sprintf("min quality must be between %d and %d", domain.MinQualityRating, domain.MaxQualityRating),
			map[string]string{"min_quality": strconv.Itoa(minQuality)},
		)
	}

	ctx, span := tracer.Start(ctx, "export.training_data", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("min_quality", minQuality),
		attribute.Int("limit", limit),
	))
	defer span.End()

	exported, err := e.store.ExportApproved(ctx, tenantID, minQuality, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "export approved feedback", err)
	}
	span.SetAttributes(attribute.Int("exported", len(exported)))

	examples := make([]TrainingExample, 0, len(exported))
	for _, fb := range exported {
		examples = append(examples, toExample(fb))
	}
	return examples, nil
}

func toExample(fb domain.Feedback) TrainingExample {
	label := fb.Corrected.Category
	if fb.Corrected.Subcategory != "" {
		label += "/" + fb.Corrected.Subcategory
	}

	metadata := map[string]string{
		"feedback_id":         fb.ID,
		"email_id":            fb.EmailID,
		"original_category":   fb.Original.Category,
		"original_confidence": strconv.FormatFloat(fb.Original.Confidence, 'f', -1, 64),
		"quality_rating":      strconv.Itoa(fb.QualityRating),
		"source":              fb.Source,
		"corrected_at":        fb.CreatedAt.UTC().Format(time.RFC3339),
	}
	if fb.Corrected.Reason != "" {
		metadata["correction_reason"] = fb.Corrected.Reason
	}

	return TrainingExample{
		Prompt:   fmt.Sprintf("Classify the customer inquiry in email %s.", fb.EmailID),
		Label:    label,
		Metadata: metadata,
	}
}
