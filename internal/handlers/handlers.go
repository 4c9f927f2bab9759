package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"marketbrief/backend-go/internal/config"
	"marketbrief/backend-go/internal/services"
)

type API struct {
	cfg   config.Config
	board *services.Board
	cache services.Cache
	log   zerolog.Logger
	loc   *time.Location
	now   func() time.Time
}

func New(cfg config.Config, board *services.Board, cache services.Cache, log zerolog.Logger) *API {
	return &API{
		cfg:   cfg,
		board: board,
		cache: cache,
		log:   log,
		loc:   cfg.Location(),
		now:   time.Now,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// timeboxed bounds upstream work so the platform gets an answer in time.
func timeboxed(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}

func nowISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
