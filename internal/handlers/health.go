package handlers

import (
	"net/http"
	"os"

	"marketbrief/backend-go/internal/models"
)

// Health is a static liveness probe; it never calls upstreams.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	backend := "none"
	if a.cache != nil {
		backend = a.cache.Backend()
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Timestamp: nowISO(a.now()),
		Cache:     backend,
		Version:   os.Getenv("SERVICE_VERSION"),
	})
}
