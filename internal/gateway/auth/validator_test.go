package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

type fakeKeyStore struct {
	byHash map[string]*models.APIKey
	err    error
}

func (f *fakeKeyStore) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	key, ok := f.byHash[hash]
	if !ok {
		return nil, database.ErrNotFound
	}
	return key, nil
}

func (f *fakeKeyStore) CreateAPIKey(context.Context, *models.APIKey) error { return nil }
func (f *fakeKeyStore) ListAPIKeys(context.Context) ([]models.APIKey, error) {
	return nil, nil
}

func storeWith(keys ...*models.APIKey) *fakeKeyStore {
	f := &fakeKeyStore{byHash: make(map[string]*models.APIKey)}
	for _, k := range keys {
		f.byHash[k.KeyHash] = k
	}
	return f
}

func TestValidateActiveKey(t *testing.T) {
	raw := "llmgw_testkey000000000000000000000000"
	store := storeWith(&models.APIKey{
		KeyHash:            HashKey(raw),
		TeamID:             "team-a",
		TeamName:           "Team A",
		RateLimitPerMinute: 120,
		IsActive:           true,
	})

	v := NewValidator(store, 60)
	team, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "team-a", team.TeamID)
	assert.Equal(t, "Team A", team.TeamName)
	assert.Equal(t, 120, team.RateLimitPerMinute)
}

func TestValidateFallbacks(t *testing.T) {
	raw := "llmgw_testkey000000000000000000000001"
	store := storeWith(&models.APIKey{
		KeyHash:  HashKey(raw),
		TeamID:   "team-b",
		IsActive: true,
	})

	v := NewValidator(store, 60)
	team, err := v.Validate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "team-b", team.TeamName, "team name falls back to the id")
	assert.Equal(t, 60, team.RateLimitPerMinute, "zero rate limit falls back to the default")
}

func TestRejectionsAreIndistinguishable(t *testing.T) {
	activeRaw := "llmgw_active0000000000000000000000000"
	disabledRaw := "llmgw_disabled00000000000000000000000"
	expiredRaw := "llmgw_expired000000000000000000000000"
	past := time.Now().Add(-time.Hour)

	store := storeWith(
		&models.APIKey{KeyHash: HashKey(activeRaw), TeamID: "t", IsActive: true},
		&models.APIKey{KeyHash: HashKey(disabledRaw), TeamID: "t", IsActive: false},
		&models.APIKey{KeyHash: HashKey(expiredRaw), TeamID: "t", IsActive: true, ExpiresAt: &past},
	)
	v := NewValidator(store, 60)
	ctx := context.Background()

	_, unknownErr := v.Validate(ctx, "llmgw_neverissued00000000000000000000")
	_, disabledErr := v.Validate(ctx, disabledRaw)
	_, expiredErr := v.Validate(ctx, expiredRaw)
	_, emptyErr := v.Validate(ctx, "")

	for _, err := range []error{unknownErr, disabledErr, expiredErr, emptyErr} {
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
	// Identical error values, so no handler can accidentally leak the reason.
	assert.Equal(t, unknownErr, disabledErr)
	assert.Equal(t, unknownErr, expiredErr)
}

func TestFutureExpiryStillValid(t *testing.T) {
	raw := "llmgw_future0000000000000000000000000"
	future := time.Now().Add(24 * time.Hour)
	store := storeWith(&models.APIKey{
		KeyHash: HashKey(raw), TeamID: "t", IsActive: true, ExpiresAt: &future,
	})

	v := NewValidator(store, 60)
	_, err := v.Validate(context.Background(), raw)
	assert.NoError(t, err)
}

func TestStoreErrorIsNotInvalidKey(t *testing.T) {
	store := &fakeKeyStore{err: errors.New("connection reset")}
	v := NewValidator(store, 60)

	_, err := v.Validate(context.Background(), "llmgw_whatever0000000000000000000000")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidKey)
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "llmgw_"))
	assert.Len(t, a, len("llmgw_")+32)
	assert.NotEqual(t, a, b)

	for _, r := range strings.TrimPrefix(a, "llmgw_") {
		assert.Contains(t, keyAlphabet, string(r))
	}
}

func TestHashKey(t *testing.T) {
	h := HashKey("llmgw_abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey("llmgw_abc"))
	assert.NotEqual(t, h, HashKey("llmgw_abd"))
}

func TestDisplayPrefix(t *testing.T) {
	assert.Equal(t, "llmgw_abcdef", DisplayPrefix("llmgw_abcdef0123456789"))
	assert.Equal(t, "short", DisplayPrefix("short"))
}
