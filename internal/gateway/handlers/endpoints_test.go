package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/strayline/llm-gateway/internal/shared/models"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "healthy", gjson.Get(body, "status").String())
	assert.Equal(t, "llm-gateway", gjson.Get(body, "service").String())
	assert.Equal(t, "test", gjson.Get(body, "version").String())
	assert.NotEmpty(t, gjson.Get(body, "timestamp").String())
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedKey(t, "team-a")

	rec := env.do(t, http.MethodGet, "/v1/models", key, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "list", gjson.Get(body, "object").String())

	data := gjson.Get(body, "data").Array()
	require.Len(t, data, 7)

	first := data[0]
	assert.Equal(t, "claude-3-haiku", first.Get("id").String())
	assert.Equal(t, "model", first.Get("object").String())
	assert.Equal(t, "anthropic", first.Get("provider").String())
	assert.InDelta(t, 0.00025, first.Get("pricing.input_per_1k").Float(), 1e-12)
	assert.InDelta(t, 0.00125, first.Get("pricing.output_per_1k").Float(), 1e-12)
	assert.True(t, first.Get("supports_streaming").Bool())

	last := data[len(data)-1]
	assert.Equal(t, "titan-text-express", last.Get("id").String())
	assert.Equal(t, "titan", last.Get("provider").String())
	assert.False(t, last.Get("supports_streaming").Bool())

	// Aliases resolve on request but are not listed.
	for _, m := range data {
		assert.NotEqual(t, "claude-3-5-sonnet", m.Get("id").String())
	}
}

func TestGetUsage(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedKey(t, "team-a")

	expires := time.Now().UTC().AddDate(0, 0, 90)
	today := time.Now().UTC()
	for i := 0; i < 3; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		for j := 0; j < 10; j++ {
			require.NoError(t, env.store.AddUsage(context.Background(), "team-a", date, models.UsageDelta{
				Requests:     1,
				InputTokens:  10,
				OutputTokens: 5,
				CostUSD:      0.001,
				Model:        "claude-3-haiku",
			}, expires))
		}
	}

	rec := env.do(t, http.MethodGet, "/v1/usage", key, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Equal(t, "team-a", gjson.Get(body, "team_id").String())
	assert.Equal(t, "team-a", gjson.Get(body, "team_name").String())
	assert.Equal(t, int64(30), gjson.Get(body, "period.days").Int())
	assert.NotEmpty(t, gjson.Get(body, "period.start").String())
	assert.NotEmpty(t, gjson.Get(body, "period.end").String())

	assert.Equal(t, int64(30), gjson.Get(body, "summary.total_requests").Int())
	assert.Equal(t, int64(300), gjson.Get(body, "summary.total_input_tokens").Int())
	assert.Equal(t, int64(150), gjson.Get(body, "summary.total_output_tokens").Int())
	assert.Equal(t, int64(450), gjson.Get(body, "summary.total_tokens").Int())
	assert.InDelta(t, 0.03, gjson.Get(body, "summary.total_cost_usd").Float(), 1e-9)
	assert.InDelta(t, 0.001, gjson.Get(body, "summary.avg_daily_cost_usd").Float(), 1e-9)
	assert.InDelta(t, 15.0, gjson.Get(body, "summary.avg_tokens_per_request").Float(), 1e-9)

	daily := gjson.Get(body, "daily").Array()
	require.Len(t, daily, 3)
	assert.Equal(t, int64(10), daily[0].Get("requests").Int())

	byModel := gjson.Get(body, "by_model").Array()
	require.Len(t, byModel, 1)
	assert.Equal(t, "claude-3-haiku", byModel[0].Get("model").String())
	assert.Equal(t, int64(30), byModel[0].Get("requests").Int())
}

func TestGetUsageEmptyWindow(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedKey(t, "team-a")

	rec := env.do(t, http.MethodGet, "/v1/usage?days=7", key, "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(7), gjson.Get(body, "period.days").Int())
	assert.Equal(t, int64(0), gjson.Get(body, "summary.total_requests").Int())
	assert.True(t, gjson.Get(body, "daily").IsArray())
	assert.True(t, gjson.Get(body, "by_model").IsArray())
}

func TestGetUsageBadDaysParam(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedKey(t, "team-a")

	for _, raw := range []string{"abc", "0", "-1", "366", "1.5"} {
		rec := env.do(t, http.MethodGet, "/v1/usage?days="+raw, key, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, raw)
		assert.Equal(t, "validation_error", gjson.Get(rec.Body.String(), "error.type").String(), raw)
	}
}

func TestUnknownPath(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/nope", "", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", gjson.Get(rec.Body.String(), "error.type").String())
	assert.Equal(t, "Unknown path", gjson.Get(rec.Body.String(), "error.message").String())
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedKey(t, "team-a")

	rec := env.do(t, http.MethodDelete, "/v1/models", key, "")

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", gjson.Get(rec.Body.String(), "error.type").String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
