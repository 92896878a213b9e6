package handlers

import (
	"net/http"
	"time"
)

// HealthHandler reports static service health. It sits outside auth so
// load balancers can probe it.
func HealthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"service":   "llm-gateway",
			"version":   version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
