package models

import (
	"encoding/json"
	"time"
)

// EnrichmentRecord is a cached analysis result for a (brand, section) pair.
type EnrichmentRecord struct {
	BrandID   string          `json:"brand_id"`
	Section   string          `json:"section"`
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsStale reports whether now is past the record's expiry.
func (r EnrichmentRecord) IsStale(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
