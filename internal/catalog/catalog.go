// Package catalog loads admin-authored business-type template catalogs
// from YAML and seeds them through the versioned upsert path, so seeding
// is idempotent like any other template change.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	templatedomain "github.com/jsantora/replycore/internal/template/domain"
	"github.com/jsantora/replycore/internal/template/storage"
)

// InquiryType mirrors one template inquiry type in YAML.
type InquiryType struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	PricingHint string   `yaml:"pricing_hint"`
}

// Entry is one business-type template in the catalog.
type Entry struct {
	BusinessType  string        `yaml:"business_type"`
	InquiryTypes  []InquiryType `yaml:"inquiry_types"`
	ProtocolText  string        `yaml:"protocol_text"`
	SpecialRules  []string      `yaml:"special_rules"`
	UpsellPrompts []string      `yaml:"upsell_prompts"`
}

// Catalog is a full set of seedable templates.
type Catalog struct {
	Templates []Entry `yaml:"templates"`
}

// Load reads and validates a catalog file.
func Load(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates catalog YAML.
func Parse(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := validate(catalog); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func validate(catalog Catalog) error {
	if len(catalog.Templates) == 0 {
		return fmt.Errorf("catalog has no templates")
	}
	seen := make(map[string]bool, len(catalog.Templates))
	for i, entry := range catalog.Templates {
		name := strings.TrimSpace(entry.BusinessType)
		if name == "" {
			return fmt.Errorf("template %d: business_type is required", i)
		}
		if seen[strings.ToLower(name)] {
			return fmt.Errorf("template %d: duplicate business_type %q", i, name)
		}
		seen[strings.ToLower(name)] = true
		if len(entry.InquiryTypes) == 0 {
			return fmt.Errorf("template %q: at least one inquiry type is required", name)
		}
		for j, inquiry := range entry.InquiryTypes {
			if strings.TrimSpace(inquiry.Name) == "" {
				return fmt.Errorf("template %q: inquiry type %d has no name", name, j)
			}
		}
	}
	return nil
}

// Upserter is the template write operation seeding runs through.
type Upserter interface {
	UpsertTemplate(ctx context.Context, businessType string, content templatedomain.Content, allowCreate bool) (storage.UpsertResult, error)
}

// SeedResult summarizes one seeding run.
type SeedResult struct {
	Created   int
	Updated   int
	Unchanged int
}

// Seed upserts every catalog entry. Re-seeding an unchanged catalog is a
// no-op: versions stay put and no snapshots are written.
func Seed(ctx context.Context, upserter Upserter, catalog Catalog) (SeedResult, error) {
	var result SeedResult
	for _, entry := range catalog.Templates {
		upserted, err := upserter.UpsertTemplate(ctx, entry.BusinessType, content(entry), true)
		if err != nil {
			return result, fmt.Errorf("seed template %q: %w", entry.BusinessType, err)
		}
		switch {
		case upserted.Created:
			result.Created++
		case upserted.Changed:
			result.Updated++
		default:
			result.Unchanged++
		}
	}
	return result, nil
}

func content(entry Entry) templatedomain.Content {
	inquiryTypes := make([]templatedomain.InquiryType, 0, len(entry.InquiryTypes))
	for _, inquiry := range entry.InquiryTypes {
		inquiryTypes = append(inquiryTypes, templatedomain.InquiryType{
			Name:        inquiry.Name,
			Description: inquiry.Description,
			Keywords:    inquiry.Keywords,
			PricingHint: inquiry.PricingHint,
		})
	}
	return templatedomain.Content{
		InquiryTypes:  inquiryTypes,
		ProtocolText:  entry.ProtocolText,
		SpecialRules:  entry.SpecialRules,
		UpsellPrompts: entry.UpsellPrompts,
	}
}
