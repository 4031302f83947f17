// Package gatewaystub is an in-memory stand-in for the gateway's admin API.
// It serves the same settings and metrics endpoints with the gateway's merge
// semantics, and lets callers inject failures.
package gatewaystub

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Route identifies one stub endpoint for failure injection.
type Route string

const (
	RouteGetMetrics   Route = "get_metrics"
	RouteGetSettings  Route = "get_settings"
	RouteSaveSettings Route = "save_settings"
)

// Traffic classifies a proxied request for the counters.
type Traffic int

const (
	TrafficForwarded Traffic = iota
	TrafficCacheHit
	TrafficBlocked
)

// maxBodySize caps POST /api/settings payloads.
const maxBodySize = 64 << 10

// Server holds the stub's settings and counters.
type Server struct {
	mu        sync.Mutex
	settings  models.GatewayConfiguration
	metrics   models.MetricsSnapshot
	statuses  map[Route]int
	hits      map[Route]int
	lastSaved []byte
	log       *zap.Logger
}

// New returns a stub holding the gateway's default settings and zeroed counters.
func New(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		settings: models.DefaultGatewayConfiguration(),
		statuses: make(map[Route]int),
		hits:     make(map[Route]int),
		log:      log,
	}
}

// RegisterRoutes registers the admin endpoints on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(gateway.MetricsPath, s.getMetrics).Methods(http.MethodGet)
	r.HandleFunc(gateway.SettingsPath, s.getSettings).Methods(http.MethodGet)
	r.HandleFunc(gateway.SettingsPath, s.saveSettings).Methods(http.MethodPost)
}

// Handler returns the stub wrapped in CORS for a dashboard served from allowedOrigins.
func (s *Server) Handler(allowedOrigins ...string) http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})
	return c.Handler(r)
}

// SetStatus makes route answer with status until reset with 0.
func (s *Server) SetStatus(route Route, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.statuses, route)
		return
	}
	s.statuses[route] = status
}

// SetSettings replaces the stored configuration.
func (s *Server) SetSettings(cfg models.GatewayConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg
}

// Settings returns the stored configuration.
func (s *Server) Settings() models.GatewayConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetMetrics replaces the counters.
func (s *Server) SetMetrics(m models.MetricsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Record counts one proxied request the way the gateway does.
func (s *Server) Record(t Traffic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.TotalRequests++
	switch t {
	case TrafficCacheHit:
		s.metrics.CacheHits++
	case TrafficBlocked:
		s.metrics.ThreatsBlocked++
	}
}

// Hits returns how many requests route has received, failed ones included.
func (s *Server) Hits(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// LastSavedBody returns the raw body of the most recent settings POST.
func (s *Server) LastSavedBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.lastSaved...)
}

// begin records a hit and reports the injected status for route, if any.
func (s *Server) begin(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[route]++
	return s.statuses[route]
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	if status := s.begin(RouteGetMetrics); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.mu.Lock()
	m := s.metrics
	s.mu.Unlock()
	s.respond(w, http.StatusOK, m)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	if status := s.begin(RouteGetSettings); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.respond(w, http.StatusOK, s.Settings())
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	if status := s.begin(RouteSaveSettings); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var incoming map[string]json.RawMessage
	if err := json.Unmarshal(body, &incoming); err != nil {
		http.Error(w, "invalid JSON", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	next := s.settings
	if err := merge(&next, incoming); err != nil {
		s.mu.Unlock()
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.settings = next
	s.lastSaved = body
	s.mu.Unlock()

	s.log.Info("stub_settings_saved",
		zap.String("target_backend_url", next.TargetBackendURL),
		zap.Int("rate_limit_per_minute", next.RateLimitPerMinute),
	)
	s.respond(w, http.StatusOK, map[string]string{"status": "saved"})
}

// merge applies present keys onto cfg. Absent keys keep their value, except
// rate_limit_per_minute which falls back to the default.
func merge(cfg *models.GatewayConfiguration, incoming map[string]json.RawMessage) error {
	cfg.RateLimitPerMinute = models.DefaultRateLimitPerMinute
	for _, f := range models.Fields() {
		raw, ok := incoming[string(f)]
		if !ok {
			continue
		}
		kind, _ := f.Kind()
		switch kind {
		case models.FieldKindString:
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			_ = cfg.SetString(f, v)
		case models.FieldKindInt:
			var v int
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			_ = cfg.SetInt(f, v)
		case models.FieldKindBool:
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			_ = cfg.SetBool(f, v)
		}
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("stub_failed_to_encode_response", zap.Error(err))
	}
}
