package models

import (
	"fmt"
	"time"
)

// OpportunityType classifies which detector rule produced an opportunity.
type OpportunityType string

const (
	OpportunityWeather  OpportunityType = "weather"
	OpportunitySeasonal OpportunityType = "seasonal"
)

// Urgency of an opportunity.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Opportunity is a time-bounded, rule-detected marketing suggestion.
type Opportunity struct {
	ID              string          `json:"id"`
	BrandID         string          `json:"brand_id"`
	Type            OpportunityType `json:"type"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Urgency         Urgency         `json:"urgency"`
	ConfidenceScore float64         `json:"confidence_score"`
	Source          string          `json:"source"`
	DetectedAt      time.Time       `json:"detected_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// Validate checks the invariants every persisted opportunity must hold.
func (o Opportunity) Validate() error {
	if o.ID == "" || o.BrandID == "" {
		return fmt.Errorf("opportunity requires id and brand_id")
	}
	switch o.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	default:
		return fmt.Errorf("invalid urgency %q", o.Urgency)
	}
	if o.ConfidenceScore < 0 || o.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %.2f out of range", o.ConfidenceScore)
	}
	if !o.ExpiresAt.After(o.DetectedAt) {
		return fmt.Errorf("expires_at must be after detected_at")
	}
	return nil
}

// Expired reports whether the opportunity has passed its expiry at now.
func (o Opportunity) Expired(now time.Time) bool {
	return o.ExpiresAt.Before(now)
}
