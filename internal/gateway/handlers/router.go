package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/strayline/llm-gateway/internal/gateway/archive"
	"github.com/strayline/llm-gateway/internal/gateway/auth"
	"github.com/strayline/llm-gateway/internal/gateway/httperr"
	"github.com/strayline/llm-gateway/internal/gateway/metrics"
	"github.com/strayline/llm-gateway/internal/gateway/providers"
	"github.com/strayline/llm-gateway/internal/gateway/ratelimit"
	"github.com/strayline/llm-gateway/internal/gateway/registry"
	"github.com/strayline/llm-gateway/internal/gateway/usage"
	"github.com/strayline/llm-gateway/internal/shared/config"
	"github.com/strayline/llm-gateway/internal/shared/database"
)

// Deps carries everything the router needs.
type Deps struct {
	Config     *config.Config
	Registry   *registry.Registry
	Dispatcher *providers.Dispatcher
	Validator  *auth.Validator
	Limiter    *ratelimit.Limiter
	Tracker    *usage.Tracker
	Keys       database.KeyStore
	Archiver   *archive.Archiver
	Version    string
}

// NewRouter assembles the gateway's HTTP surface. Admin routes exist only
// when an admin key is configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(StripStagePrefix)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	m := NewMiddleware(d.Validator, d.Limiter)
	r.Use(m.CORS)

	r.Get("/health", HealthHandler(d.Version))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	chat := NewChatHandler(d.Registry, d.Dispatcher, d.Tracker, d.Archiver, d.Config.DefaultModel)
	modelsHandler := NewModelsHandler(d.Registry)
	usageHandler := NewUsageHandler(d.Tracker)

	r.Route("/v1", func(r chi.Router) {
		r.Use(m.Auth)
		r.Use(m.RateLimit)

		r.Get("/models", modelsHandler.HandleListModels)
		r.Post("/chat", chat.HandleChatCompletion)
		r.Post("/chat/completions", chat.HandleChatCompletion)
		r.Get("/usage", usageHandler.HandleGetUsage)
	})

	if d.Config.AdminAPIKey != "" {
		admin := NewAdminHandler(d.Keys, d.Config.DefaultRateLimit)
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdminKey(d.Config.AdminAPIKey))
			r.Post("/keys", admin.HandleCreateKey)
			r.Get("/keys", admin.HandleListKeys)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperr.Write(w, httperr.NotFound())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperr.Write(w, httperr.MethodNotAllowed())
	})

	return r
}
