package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/strayline/llm-gateway/internal/gateway/auth"
	"github.com/strayline/llm-gateway/internal/gateway/httperr"
	"github.com/strayline/llm-gateway/internal/gateway/metrics"
	"github.com/strayline/llm-gateway/internal/gateway/ratelimit"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

type contextKey int

const (
	teamContextKey contextKey = iota
	requestIDContextKey
)

// TeamFromContext returns the identity attached by the Auth middleware.
func TeamFromContext(ctx context.Context) (models.TeamIdentity, bool) {
	team, ok := ctx.Value(teamContextKey).(models.TeamIdentity)
	return team, ok
}

// RequestIDFromContext returns the request id attached by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

type Middleware struct {
	validator *auth.Validator
	limiter   *ratelimit.Limiter
}

func NewMiddleware(validator *auth.Validator, limiter *ratelimit.Limiter) *Middleware {
	return &Middleware{
		validator: validator,
		limiter:   limiter,
	}
}

// Auth validates the caller's API key and attaches the team identity to
// the request context. Unknown, disabled and expired keys all produce the
// same response; only a missing key reads differently.
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractAPIKey(r)
		if rawKey == "" {
			httperr.Write(w, httperr.AuthInvalid("Missing API key. Include x-api-key header."))
			return
		}

		team, err := m.validator.Validate(r.Context(), rawKey)
		if errors.Is(err, auth.ErrInvalidKey) {
			httperr.Write(w, httperr.AuthInvalid("Invalid API key."))
			return
		}
		if err != nil {
			log.WithError(err).Error("api key validation failed")
			httperr.Write(w, httperr.Internal())
			return
		}

		ctx := context.WithValue(r.Context(), teamContextKey, *team)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAPIKey pulls the raw key from x-api-key, falling back to a Bearer
// token.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}

// RateLimit enforces the team's per-minute ceiling.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		team, ok := TeamFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(team.RateLimitPerMinute))

		if !m.limiter.Allow(r.Context(), team.TeamID, team.RateLimitPerMinute) {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Retry-After", "60")
			httperr.Write(w, httperr.RateLimited())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORS handles cross-origin requests
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key, X-Admin-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestID tags every request and response with an id for correlation.
// An id supplied by a front proxy is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var stagePrefixes = []string{"/dev", "/staging", "/prod"}

// StripStagePrefix removes a deployment stage segment so routes match no
// matter which stage fronted the request, e.g. /dev/health -> /health.
func StripStagePrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, stage := range stagePrefixes {
			if r.URL.Path != stage && !strings.HasPrefix(r.URL.Path, stage+"/") {
				continue
			}
			trimmed := strings.TrimPrefix(r.URL.Path, stage)
			if trimmed == "" {
				trimmed = "/"
			}
			r2 := new(http.Request)
			*r2 = *r
			r2.URL = new(url.URL)
			*r2.URL = *r.URL
			r2.URL.Path = trimmed
			next.ServeHTTP(w, r2)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger emits one structured log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": RequestIDFromContext(r.Context()),
		}).Info("request completed")
	})
}
