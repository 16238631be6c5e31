// Package domain defines classification feedback records and their
// review lifecycle.
package domain

import (
	"strings"
	"time"
)

// Status is the training lifecycle state of a feedback row.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusUsed     Status = "used"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusUsed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the move from s to next is legal.
// Pending rows can be approved or rejected; approved rows become used
// when exported. Rejected and used are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusUsed
	}
	return false
}

// Classification is a category assignment for an inbound email. Original
// classifications carry the classifier's confidence; corrections carry an
// optional free-text reason instead.
type Classification struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	AICanReply  bool    `json:"ai_can_reply"`
	Reason      string  `json:"reason,omitempty"`
}

// Feedback is one tenant correction to an automated classification.
// Rows are append-only; a later correction for the same email references
// the prior row through SupersedesID instead of overwriting it.
type Feedback struct {
	ID            string
	TenantID      string
	EmailID       string
	Original      Classification
	Corrected     Classification
	QualityRating int
	Status        Status
	Source        string
	ReviewerID    string
	ReviewNotes   string
	SupersedesID  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Rating bounds for the quality scale.
const (
	MinQualityRating = 1
	MaxQualityRating = 5
)

// NormalizeClassification trims free-text fields in place.
func NormalizeClassification(c Classification) Classification {
	c.Category = strings.TrimSpace(c.Category)
	c.Subcategory = strings.TrimSpace(c.Subcategory)
	c.Reason = strings.TrimSpace(c.Reason)
	return c
}
