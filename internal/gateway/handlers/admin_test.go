package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/strayline/llm-gateway/internal/shared/config"
)

func (e *testEnv) doAdmin(t *testing.T, method, path, adminKey, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAdminCreateAndListKeys(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(t, http.MethodPost, "/admin/keys", testAdminKey, `{
		"team_id": "team-data",
		"team_name": "Data Platform",
		"rate_limit_rpm": 120,
		"expires_in_days": 30
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := rec.Body.String()

	rawKey := gjson.Get(body, "api_key").String()
	assert.True(t, strings.HasPrefix(rawKey, "llmgw_"))
	assert.Equal(t, "team-data", gjson.Get(body, "team_id").String())
	assert.Equal(t, "Data Platform", gjson.Get(body, "team_name").String())
	assert.Equal(t, int64(120), gjson.Get(body, "rate_limit_rpm").Int())
	assert.NotEmpty(t, gjson.Get(body, "expires_at").String())
	assert.Equal(t, "API key created successfully. Store this key securely - it cannot be retrieved again.", gjson.Get(body, "message").String())

	// The minted key authenticates immediately.
	authed := env.do(t, http.MethodGet, "/v1/models", rawKey, "")
	assert.Equal(t, http.StatusOK, authed.Code)

	// Listing exposes the display prefix, never the key or its hash.
	list := env.doAdmin(t, http.MethodGet, "/admin/keys", testAdminKey, "")
	require.Equal(t, http.StatusOK, list.Code)

	listBody := list.Body.String()
	assert.Equal(t, int64(1), gjson.Get(listBody, "count").Int())

	entry := gjson.Get(listBody, "keys.0")
	prefix := entry.Get("api_key_prefix").String()
	assert.True(t, strings.HasSuffix(prefix, "..."))
	assert.True(t, strings.HasPrefix(rawKey, strings.TrimSuffix(prefix, "...")))
	assert.Equal(t, "team-data", entry.Get("team_id").String())
	assert.True(t, entry.Get("is_active").Bool())
	assert.NotContains(t, listBody, rawKey)
}

func TestAdminCreateKeyDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(t, http.MethodPost, "/admin/keys", testAdminKey, `{"team_id":"team-min"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "team-min", gjson.Get(body, "team_name").String())
	assert.Equal(t, int64(60), gjson.Get(body, "rate_limit_rpm").Int())
	assert.False(t, gjson.Get(body, "expires_at").Exists())
}

func TestAdminCreateKeyValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing team_id", `{"team_name":"x"}`},
		{"negative rate limit", `{"team_id":"t","rate_limit_rpm":-1}`},
		{"negative expiry", `{"team_id":"t","expires_in_days":-1}`},
		{"malformed json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.doAdmin(t, http.MethodPost, "/admin/keys", testAdminKey, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAdminRequiresKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(t, http.MethodGet, "/admin/keys", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doAdmin(t, http.MethodGet, "/admin/keys", "wrong-key", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_invalid", gjson.Get(rec.Body.String(), "error.type").String())
}

func TestAdminRoutesAbsentWhenUnconfigured(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.AdminAPIKey = "" })

	rec := env.doAdmin(t, http.MethodGet, "/admin/keys", testAdminKey, "")

	// Without an admin key the surface does not exist at all.
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown path", gjson.Get(rec.Body.String(), "error.message").String())
}
