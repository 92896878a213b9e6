package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strayline/llm-gateway/internal/gateway/auth"
	"github.com/strayline/llm-gateway/internal/gateway/providers"
	"github.com/strayline/llm-gateway/internal/gateway/ratelimit"
	"github.com/strayline/llm-gateway/internal/gateway/registry"
	"github.com/strayline/llm-gateway/internal/gateway/usage"
	"github.com/strayline/llm-gateway/internal/shared/config"
	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

const testAdminKey = "admin-secret"

// stubRuntime stands in for the model runtime endpoint. Tests swap its
// response per scenario and inspect what the gateway sent.
type stubRuntime struct {
	server *httptest.Server

	mu       sync.Mutex
	hits     int
	lastPath string
	lastBody []byte
	handler  http.HandlerFunc
}

func newStubRuntime(t *testing.T) *stubRuntime {
	t.Helper()

	s := &stubRuntime{}
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.hits++
		s.lastPath = r.URL.Path
		s.lastBody = body
		h := s.handler
		s.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubRuntime) respond(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

// respondSSE plays each payload as one server-sent event.
func (s *stubRuntime) respondSSE(payloads ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			io.WriteString(w, "data: "+p+"\n\n")
		}
	}
}

func (s *stubRuntime) hitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

func (s *stubRuntime) last() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPath, s.lastBody
}

type testEnv struct {
	router  http.Handler
	store   database.Store
	runtime *stubRuntime
	tracker *usage.Tracker
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	store, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runtime := newStubRuntime(t)
	tracker := usage.NewTracker(store, 90)

	cfg := &config.Config{
		DefaultRateLimit: 60,
		AdminAPIKey:      testAdminKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	router := NewRouter(Deps{
		Config:     cfg,
		Registry:   registry.Default(),
		Dispatcher: providers.NewDispatcher(runtime.server.URL, "rt-secret"),
		Validator:  auth.NewValidator(store, cfg.DefaultRateLimit),
		Limiter:    ratelimit.New(ratelimit.NewMemoryCounters()),
		Tracker:    tracker,
		Keys:       store,
		Version:    "test",
	})

	return &testEnv{router: router, store: store, runtime: runtime, tracker: tracker}
}

// seedKey provisions an active key for teamID and returns the raw key.
func (e *testEnv) seedKey(t *testing.T, teamID string, mutate ...func(*models.APIKey)) string {
	t.Helper()

	rawKey, err := auth.GenerateKey()
	require.NoError(t, err)

	key := &models.APIKey{
		KeyHash:            auth.HashKey(rawKey),
		KeyPrefix:          auth.DisplayPrefix(rawKey),
		TeamID:             teamID,
		TeamName:           teamID,
		RateLimitPerMinute: 60,
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
	}
	for _, m := range mutate {
		m(key)
	}
	require.NoError(t, e.store.CreateAPIKey(context.Background(), key))
	return rawKey
}

func (e *testEnv) do(t *testing.T, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// parseSSE returns the data payload of every event in body, in order.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()

	var payloads []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	return payloads
}
