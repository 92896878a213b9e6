package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/strayline/llm-gateway/internal/gateway/auth"
	"github.com/strayline/llm-gateway/internal/gateway/httperr"
	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

type AdminHandler struct {
	keys       database.KeyStore
	defaultRPM int
}

func NewAdminHandler(keys database.KeyStore, defaultRPM int) *AdminHandler {
	return &AdminHandler{
		keys:       keys,
		defaultRPM: defaultRPM,
	}
}

// RequireAdminKey guards admin routes. The comparison is constant time so
// the key cannot be probed byte by byte.
func RequireAdminKey(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
				httperr.Write(w, httperr.AuthInvalid("Invalid admin key."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type createKeyRequest struct {
	TeamID        string `json:"team_id"`
	TeamName      string `json:"team_name"`
	RateLimitRPM  int    `json:"rate_limit_rpm"`
	ExpiresInDays int    `json:"expires_in_days"`
}

type createKeyResponse struct {
	APIKey       string     `json:"api_key"`
	KeyPrefix    string     `json:"key_prefix"`
	TeamID       string     `json:"team_id"`
	TeamName     string     `json:"team_name"`
	RateLimitRPM int        `json:"rate_limit_rpm"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Message      string     `json:"message"`
}

// HandleCreateKey handles POST /admin/keys. The raw key appears in this
// response and nowhere else; only its hash is stored.
func (h *AdminHandler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, httperr.Validation("Invalid request body."))
		return
	}

	if req.TeamID == "" {
		httperr.Write(w, httperr.Validation("Missing required field: team_id"))
		return
	}
	if req.RateLimitRPM < 0 {
		httperr.Write(w, httperr.Validation("rate_limit_rpm must be a positive integer"))
		return
	}
	if req.ExpiresInDays < 0 {
		httperr.Write(w, httperr.Validation("expires_in_days must be a positive integer"))
		return
	}

	rawKey, err := auth.GenerateKey()
	if err != nil {
		log.WithError(err).Error("key generation failed")
		httperr.Write(w, httperr.Internal())
		return
	}

	teamName := req.TeamName
	if teamName == "" {
		teamName = req.TeamID
	}
	rpm := req.RateLimitRPM
	if rpm == 0 {
		rpm = h.defaultRPM
	}

	key := &models.APIKey{
		KeyHash:            auth.HashKey(rawKey),
		KeyPrefix:          auth.DisplayPrefix(rawKey),
		TeamID:             req.TeamID,
		TeamName:           teamName,
		RateLimitPerMinute: rpm,
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
	}
	if req.ExpiresInDays > 0 {
		expiresAt := key.CreatedAt.AddDate(0, 0, req.ExpiresInDays)
		key.ExpiresAt = &expiresAt
	}

	if err := h.keys.CreateAPIKey(r.Context(), key); err != nil {
		log.WithError(err).WithField("team_id", req.TeamID).Error("key creation failed")
		httperr.Write(w, httperr.Internal())
		return
	}

	log.WithFields(log.Fields{
		"team_id":    key.TeamID,
		"key_prefix": key.KeyPrefix,
	}).Info("api key created")

	writeJSON(w, http.StatusCreated, createKeyResponse{
		APIKey:       rawKey,
		KeyPrefix:    key.KeyPrefix,
		TeamID:       key.TeamID,
		TeamName:     key.TeamName,
		RateLimitRPM: key.RateLimitPerMinute,
		ExpiresAt:    key.ExpiresAt,
		Message:      "API key created successfully. Store this key securely - it cannot be retrieved again.",
	})
}

type keyEntry struct {
	APIKeyPrefix string     `json:"api_key_prefix"`
	TeamID       string     `json:"team_id"`
	TeamName     string     `json:"team_name"`
	RateLimitRPM int        `json:"rate_limit_rpm"`
	IsActive     bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type listKeysResponse struct {
	Keys  []keyEntry `json:"keys"`
	Count int        `json:"count"`
}

// HandleListKeys handles GET /admin/keys. Hashes never leave the store;
// entries carry the display prefix only.
func (h *AdminHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListAPIKeys(r.Context())
	if err != nil {
		log.WithError(err).Error("key listing failed")
		httperr.Write(w, httperr.Internal())
		return
	}

	entries := make([]keyEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, keyEntry{
			APIKeyPrefix: k.KeyPrefix + "...",
			TeamID:       k.TeamID,
			TeamName:     k.TeamName,
			RateLimitRPM: k.RateLimitPerMinute,
			IsActive:     k.IsActive,
			ExpiresAt:    k.ExpiresAt,
			CreatedAt:    k.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, listKeysResponse{Keys: entries, Count: len(entries)})
}
