// Package auth validates gateway API keys and generates new ones.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

// ErrInvalidKey is returned for every key the validator rejects. Unknown,
// disabled and expired keys collapse to this one error so responses cannot
// reveal whether a guessed key exists.
var ErrInvalidKey = errors.New("invalid API key")

// Validator resolves raw API keys to team identities.
type Validator struct {
	keys       database.KeyStore
	defaultRPM int
	now        func() time.Time
}

func NewValidator(keys database.KeyStore, defaultRPM int) *Validator {
	return &Validator{keys: keys, defaultRPM: defaultRPM, now: time.Now}
}

// Validate resolves rawKey to a team identity. Storage failures are
// returned as distinct errors, not ErrInvalidKey: a broken store must
// surface as a server error, never as a plausible-looking rejection.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*models.TeamIdentity, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}

	key, err := v.keys.GetAPIKeyByHash(ctx, HashKey(rawKey))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("key lookup: %w", err)
	}

	if !key.IsActive {
		return nil, ErrInvalidKey
	}
	if key.ExpiresAt != nil && v.now().After(*key.ExpiresAt) {
		return nil, ErrInvalidKey
	}

	rpm := key.RateLimitPerMinute
	if rpm <= 0 {
		rpm = v.defaultRPM
	}
	name := key.TeamName
	if name == "" {
		name = key.TeamID
	}

	return &models.TeamIdentity{
		TeamID:             key.TeamID,
		TeamName:           name,
		RateLimitPerMinute: rpm,
	}, nil
}
