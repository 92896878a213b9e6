// Package database persists API keys and daily usage rollups. Two drivers
// are supported: postgres for deployments and sqlite for local development
// and tests. Both speak the same Store interface.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strayline/llm-gateway/internal/shared/models"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// KeyStore is the API key persistence surface.
type KeyStore interface {
	// GetAPIKeyByHash fetches a key row by its SHA-256 hash. It returns the
	// row regardless of is_active or expiry; deciding whether the key is
	// acceptable is the validator's job.
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]models.APIKey, error)
}

// UsageStore is the usage rollup persistence surface. Dates are ISO
// "YYYY-MM-DD" strings in UTC; one row per team per day.
type UsageStore interface {
	// AddUsage atomically folds delta into the team's row for date,
	// creating it if absent. expiresAt refreshes the row's retention
	// deadline on every write.
	AddUsage(ctx context.Context, teamID, date string, delta models.UsageDelta, expiresAt time.Time) error
	// UsageBetween returns daily rows ordered by date ascending and
	// per-model request counts ordered by count descending, both limited
	// to fromDate..toDate inclusive.
	UsageBetween(ctx context.Context, teamID, fromDate, toDate string) ([]models.DailyUsage, []models.ModelUsage, error)
	// PurgeExpired deletes usage rows whose retention deadline has passed
	// and returns how many daily rows were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	KeyStore
	UsageStore
	Ping(ctx context.Context) error
	Close() error
}

// Open creates a Store for the given driver and DSN.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		return newPostgres(dsn)
	case "sqlite":
		return newSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
