// Package httpapi assembles the HTTP surface of an nsbus process: the
// WebSocket endpoint plus health, inspection and metrics routes.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/nsbus/pkg/registry"
	"github.com/vango-dev/nsbus/pkg/server"
)

// Options configures NewRouter.
type Options struct {
	// Gatherer backs the metrics route. Nil disables it.
	Gatherer prometheus.Gatherer

	// MetricsPath is where metrics are served.
	// Default: "/metrics".
	MetricsPath string

	// Logger receives one line per request.
	// Default: the server config logger.
	Logger *slog.Logger
}

// NewRouter returns a chi router serving srv's WebSocket path and the
// auxiliary routes.
func NewRouter(srv *server.Server, opts Options) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = srv.Config().Logger
	}
	logger = logger.With("component", "http")

	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get(srv.Config().Path, srv.HandleWebSocket)
	r.Get("/healthz", healthz(srv.Registry()))
	r.Get("/connections", listConnections(srv.Registry()))
	r.Get("/connections/{id}", getConnection(srv.Registry()))

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, metricsPath, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"request_id", middleware.GetReqID(r.Context()),
				"duration", time.Since(start))
		})
	}
}

type healthResponse struct {
	Status string         `json:"status"`
	Stats  registry.Stats `json:"stats"`
}

func healthz(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: reg.Stats()})
	}
}

func listConnections(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := reg.List()
		if r.URL.Query().Get("open") == "true" {
			open := list[:0]
			for _, c := range list {
				if c.Open {
					open = append(open, c)
				}
			}
			list = open
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getConnection(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := reg.Get(chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown connection"})
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
