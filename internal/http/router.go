package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig agrupa lo necesario para armar el router.
type RouterConfig struct {
	Mail     *MailHandler
	Metrics  *Metrics            // opcional
	Gatherer prometheus.Gatherer // para /metrics; default DefaultGatherer
}

// NewRouter arma el router chi con la cadena de middlewares:
// request id -> logging -> recover -> metrics -> security headers -> handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(
		WithRequestID,
		WithLogging,
		WithRecover,
		cfg.Metrics.Handler,
		WithSecurityHeaders,
	)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.Mail != nil {
		cfg.Mail.Register(r)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusNotFound, &HTTPError{Code: "not_found", Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, &HTTPError{Code: "method_not_allowed", Message: "Method not allowed"})
	})
	return r
}
