// Package domain defines daily accuracy metric snapshots.
package domain

import "time"

// Snapshot is one tenant's aggregated correction metrics for one UTC day.
// At most one snapshot exists per (tenant, date); a snapshot implies at
// least one observed correction.
type Snapshot struct {
	TenantID              string
	Date                  string // YYYY-MM-DD, UTC
	TotalCorrections      int
	AvgOriginalConfidence float64
	HighConfidenceErrors  int
	CategoryCounts        map[string]int // corrections per original category
	ComputedAt            time.Time
}

// DefaultHighConfidenceThreshold marks corrections whose original
// classification was confident yet wrong.
const DefaultHighConfidenceThreshold = 0.8

// ParseDate validates a YYYY-MM-DD date and returns the UTC day start.
func ParseDate(date string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, err
	}
	return day.UTC(), nil
}
