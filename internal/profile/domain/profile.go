// Package domain holds tenant profile records and selection rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jsantora/replycore/internal/platform/errors"
)

// MaxBusinessTypes caps a tenant's business-type selection.
const MaxBusinessTypes = 12

// Profile is one tenant's business-type selection.
type Profile struct {
	TenantID string
	// BusinessTypes is the ordered selection; order drives merge output.
	BusinessTypes []string
	PrimaryType   string
	// CacheGeneration increments on every selection change.
	CacheGeneration int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NormalizeSelection validates a tenant's business-type selection: count in
// [1,12], non-empty names, no duplicates. The primary type defaults to the
// first selection when empty and must otherwise be a member of the list.
func NormalizeSelection(businessTypes []string, primaryType string) ([]string, string, error) {
	if len(businessTypes) < 1 || len(businessTypes) > MaxBusinessTypes {
		return nil, "", apperrors.WithMetadata(
			apperrors.CodeTenantTypeCountInvalid,
			fmt.Sprintf("business type count must be between 1 and %d, got %d", MaxBusinessTypes, len(businessTypes)),
			map[string]string{"count": fmt.Sprintf("%d", len(businessTypes))},
		)
	}
	normalized := make([]string, 0, len(businessTypes))
	seen := make(map[string]bool, len(businessTypes))
	for _, name := range businessTypes {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, "", apperrors.New(apperrors.CodeTenantTypeCountInvalid, "business type names must be non-empty")
		}
		if seen[name] {
			return nil, "", apperrors.WithMetadata(
				apperrors.CodeTenantDuplicateType,
				fmt.Sprintf("business type %q selected more than once", name),
				map[string]string{"business_type": name},
			)
		}
		seen[name] = true
		normalized = append(normalized, name)
	}

	primaryType = strings.TrimSpace(primaryType)
	if primaryType == "" {
		primaryType = normalized[0]
	} else if !seen[primaryType] {
		return nil, "", apperrors.WithMetadata(
			apperrors.CodeTenantUnknownType,
			fmt.Sprintf("primary type %q is not part of the selection", primaryType),
			map[string]string{"business_type": primaryType},
		)
	}
	return normalized, primaryType, nil
}
