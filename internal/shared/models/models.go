package models

import "time"

// APIKey represents a gateway API key as stored. Only the SHA-256 hash of
// the raw key is persisted; KeyPrefix is a short display fragment for
// listings.
type APIKey struct {
	KeyHash            string
	KeyPrefix          string
	TeamID             string
	TeamName           string
	RateLimitPerMinute int
	IsActive           bool
	ExpiresAt          *time.Time
	CreatedAt          time.Time
}

// TeamIdentity is the caller identity attached to a request after key
// validation succeeds.
type TeamIdentity struct {
	TeamID             string
	TeamName           string
	RateLimitPerMinute int
}

// DailyUsage is one team-day usage row.
type DailyUsage struct {
	Date         string
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// ModelUsage is a per-model request count within a reporting window.
type ModelUsage struct {
	Model string
	Count int64
}

// UsageDelta is the per-request increment applied to a team's daily
// usage row.
type UsageDelta struct {
	Requests     int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Model        string
}
