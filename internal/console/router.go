// Package console assembles the console HTTP server and the background work
// behind it.
package console

import (
	"net/http"
	"time"

	"github.com/benvon/gateway-console/internal/handlers"
	"github.com/benvon/gateway-console/internal/middleware"
	"github.com/benvon/gateway-console/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// RouterConfig is everything NewRouter needs.
type RouterConfig struct {
	Settings  handlers.SettingsForm
	Dashboard handlers.Dashboard
	Health    *handlers.HealthChecker
	Gatherer  prometheus.Gatherer

	// RateLimit guards mutating console routes. Nil disables limiting.
	RateLimit func(http.Handler) http.Handler

	FrontendURL    string
	EnableHSTS     bool
	Tracing        bool
	RequestTimeout time.Duration
	Log            *zap.Logger
}

// NewRouter builds the console API. In gorilla/mux the middleware registered
// last runs innermost.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	if cfg.Tracing {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, log))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(log))
	r.Use(middleware.Logging(log))

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthChecker()
	}
	r.HandleFunc("/healthz", health.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/console").Subrouter()
	if cfg.RateLimit != nil {
		api.Use(middleware.MutationsOnly(cfg.RateLimit))
	}
	handlers.NewSettingsHandler(cfg.Settings, log).RegisterRoutes(api)
	handlers.NewMetricsHandler(cfg.Dashboard).RegisterRoutes(api)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, middleware.KindNotFound, "No such console route", log)
	})

	// CORS wraps the router so preflights are answered before route matching.
	return middleware.CORS(cfg.FrontendURL)(r)
}
