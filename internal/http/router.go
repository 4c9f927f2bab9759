package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"marketbrief/backend-go/internal/config"
	"marketbrief/backend-go/internal/handlers"
	"marketbrief/backend-go/internal/metrics"
)

func NewRouter(cfg config.Config, api *handlers.API, m *metrics.Metrics, gatherer prometheus.Gatherer, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /exchange_rate", api.ExchangeRate)
	mux.HandleFunc("GET /health", api.Health)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	h := http.Handler(mux)
	h = withRecovery(log)(h)
	h = withLogging(log, m)(h)
	h = withRateLimit(cfg.RateLimitPerMin)(h)
	h = withCORS(h)
	h = withRequestID(h)
	return h
}
