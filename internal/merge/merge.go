// Package merge combines active business-type templates into one runtime
// configuration. The combination is deterministic and order-sensitive:
// merging ["A","B"] and ["B","A"] are different configurations.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	"github.com/jsantora/replycore/internal/template/domain"
	"github.com/jsantora/replycore/internal/template/storage"
)

var tracer = otel.Tracer("github.com/jsantora/replycore/internal/merge")

// MaxBusinessTypes caps how many business types one tenant can combine.
const MaxBusinessTypes = 12

// protocolSeparator joins per-type protocol blocks.
const protocolSeparator = "\n\n"

// TaggedInquiryType is an inquiry type annotated with the business type it
// came from. Identical names under different business types stay distinct;
// deduplicating across types would lose the source tag consumers route on.
type TaggedInquiryType struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	PricingHint  string   `json:"pricing_hint,omitempty"`
	BusinessType string   `json:"business_type"`
}

// Configuration is the merged runtime configuration handed to the workflow
// deployment collaborator. Field names and array ordering are part of the
// contract.
type Configuration struct {
	BusinessTypeList []string            `json:"business_type_list"`
	TemplateCount    int                 `json:"template_count"`
	MergedAt         time.Time           `json:"merged_at"`
	InquiryTypes     []TaggedInquiryType `json:"inquiry_types"`
	Protocols        string              `json:"protocols"`
	SpecialRules     []string            `json:"special_rules"`
	UpsellPrompts    []string            `json:"upsell_prompts"`
}

// TemplateReader is the read surface the engine needs. The multi-template
// read happens within one consistent snapshot; the engine itself holds no
// locks and performs no writes.
type TemplateReader interface {
	GetActiveMany(ctx context.Context, businessTypes []string) (storage.MultiReadResult, error)
}

// Engine merges templates read through a TemplateReader.
type Engine struct {
	reader TemplateReader
	clock  func() time.Time
}

// NewEngine creates a merge engine with the default clock.
func NewEngine(reader TemplateReader) *Engine {
	return &Engine{reader: reader, clock: time.Now}
}

// NewEngineWithClock creates a merge engine with a fixed clock, for callers
// that need reproducible MergedAt values.
func NewEngineWithClock(reader TemplateReader, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{reader: reader, clock: clock}
}

// ValidateTypeList checks the count bound and uniqueness of a business-type
// selection. Names are compared after normalization.
func ValidateTypeList(businessTypes []string) ([]string, error) {
	if len(businessTypes) == 0 {
		return nil, apperrors.New(apperrors.CodeMergeTypeListEmpty, "at least one business type is required")
	}
	if len(businessTypes) > MaxBusinessTypes {
		return nil, apperrors.WithMetadata(
			apperrors.CodeMergeTypeListTooLong,
			fmt.Sprintf("at most %d business types are allowed, got %d", MaxBusinessTypes, len(businessTypes)),
			map[string]string{"count": fmt.Sprintf("%d", len(businessTypes))},
		)
	}
	normalized := make([]string, 0, len(businessTypes))
	seen := make(map[string]bool, len(businessTypes))
	for _, name := range businessTypes {
		name = domain.NormalizeBusinessType(name)
		if name == "" {
			return nil, apperrors.New(apperrors.CodeMergeTypeListEmpty, "business type names must be non-empty")
		}
		if seen[name] {
			return nil, apperrors.WithMetadata(
				apperrors.CodeMergeDuplicateType,
				fmt.Sprintf("business type %q appears more than once", name),
				map[string]string{"business_type": name},
			)
		}
		seen[name] = true
		normalized = append(normalized, name)
	}
	return normalized, nil
}

// Merge combines the active templates for the given business types, in the
// given order. If any referenced template is missing or inactive the merge
// fails entirely and reports every missing name.
func (e *Engine) Merge(ctx context.Context, businessTypes []string) (Configuration, error) {
	if e == nil || e.reader == nil {
		return Configuration{}, fmt.Errorf("template reader is not configured")
	}
	normalized, err := ValidateTypeList(businessTypes)
	if err != nil {
		return Configuration{}, err
	}

	ctx, span := tracer.Start(ctx, "merge.templates", trace.WithAttributes(
		attribute.StringSlice("business_types", normalized),
	))
	defer span.End()

	result, err := e.reader.GetActiveMany(ctx, normalized)
	if err != nil {
		return Configuration{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "read templates", err)
	}
	if len(result.Missing) > 0 {
		return Configuration{}, apperrors.WithMetadata(
			apperrors.CodeMergeTemplatesMissing,
			fmt.Sprintf("no active template for: %s", strings.Join(result.Missing, ", ")),
			map[string]string{"missing": strings.Join(result.Missing, ",")},
		)
	}

	byType := make(map[string]domain.Template, len(result.Templates))
	for _, record := range result.Templates {
		byType[record.BusinessType] = record
	}

	configuration := Configuration{
		BusinessTypeList: normalized,
		TemplateCount:    len(normalized),
		MergedAt:         e.clock().UTC(),
	}
	var protocolBlocks []string
	for _, businessType := range normalized {
		record := byType[businessType]
		for _, inquiry := range record.Content.InquiryTypes {
			configuration.InquiryTypes = append(configuration.InquiryTypes, TaggedInquiryType{
				Name:         inquiry.Name,
				Description:  inquiry.Description,
				Keywords:     inquiry.Keywords,
				PricingHint:  inquiry.PricingHint,
				BusinessType: businessType,
			})
		}
		protocolBlocks = append(protocolBlocks, fmt.Sprintf("**%s Protocols:**\n%s", businessType, record.Content.ProtocolText))
		configuration.SpecialRules = append(configuration.SpecialRules, record.Content.SpecialRules...)
		configuration.UpsellPrompts = append(configuration.UpsellPrompts, record.Content.UpsellPrompts...)
	}
	configuration.Protocols = strings.Join(protocolBlocks, protocolSeparator)

	return configuration, nil
}
