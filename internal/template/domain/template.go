// Package domain holds business-type template records and content rules.
package domain

import (
	"strings"
	"time"
)

// InquiryType is one customer inquiry category a business type recognizes.
type InquiryType struct {
	Name        string
	Description string
	Keywords    []string
	PricingHint string
}

// Content holds the substantive, versioned fields of a template. Changing
// any Content field bumps the template version; metadata changes do not.
type Content struct {
	InquiryTypes  []InquiryType
	ProtocolText  string
	SpecialRules  []string
	UpsellPrompts []string
}

// Template is the active template record for one business type.
type Template struct {
	ID           string
	BusinessType string
	Version      int
	Content      Content
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot is an immutable copy of a template's state before an update.
type Snapshot struct {
	ID         string
	TemplateID string
	Version    int
	Content    Content
	CreatedAt  time.Time
}

// NormalizeBusinessType canonicalizes a business type name for lookups.
func NormalizeBusinessType(name string) string {
	return strings.TrimSpace(name)
}

// NormalizeContent trims string fields and drops empty list entries so that
// equality comparison is insensitive to incidental whitespace.
func NormalizeContent(content Content) Content {
	normalized := Content{
		ProtocolText: strings.TrimSpace(content.ProtocolText),
	}
	for _, inquiry := range content.InquiryTypes {
		name := strings.TrimSpace(inquiry.Name)
		if name == "" {
			continue
		}
		cleaned := InquiryType{
			Name:        name,
			Description: strings.TrimSpace(inquiry.Description),
			PricingHint: strings.TrimSpace(inquiry.PricingHint),
		}
		for _, keyword := range inquiry.Keywords {
			keyword = strings.TrimSpace(keyword)
			if keyword != "" {
				cleaned.Keywords = append(cleaned.Keywords, keyword)
			}
		}
		normalized.InquiryTypes = append(normalized.InquiryTypes, cleaned)
	}
	normalized.SpecialRules = normalizeList(content.SpecialRules)
	normalized.UpsellPrompts = normalizeList(content.UpsellPrompts)
	return normalized
}

func normalizeList(values []string) []string {
	var cleaned []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			cleaned = append(cleaned, value)
		}
	}
	return cleaned
}

// ContentEquals reports whether two normalized contents are substantively
// identical. Order matters throughout: inquiry types, keywords, rules and
// prompts are ordered lists.
func ContentEquals(a, b Content) bool {
	if a.ProtocolText != b.ProtocolText {
		return false
	}
	if len(a.InquiryTypes) != len(b.InquiryTypes) {
		return false
	}
	for i := range a.InquiryTypes {
		if !inquiryTypeEquals(a.InquiryTypes[i], b.InquiryTypes[i]) {
			return false
		}
	}
	return listEquals(a.SpecialRules, b.SpecialRules) &&
		listEquals(a.UpsellPrompts, b.UpsellPrompts)
}

func inquiryTypeEquals(a, b InquiryType) bool {
	if a.Name != b.Name || a.Description != b.Description || a.PricingHint != b.PricingHint {
		return false
	}
	return listEquals(a.Keywords, b.Keywords)
}

func listEquals(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
