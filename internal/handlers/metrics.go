package handlers

import (
	"net/http"

	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/gorilla/mux"
)

// Dashboard is the metrics page as the console API exposes it.
type Dashboard interface {
	Snapshot() models.MetricsSnapshot
	Stats() []views.Stat
}

// MetricsHandler serves the latest gateway counters.
type MetricsHandler struct {
	dashboard Dashboard
}

// NewMetricsHandler creates a handler over dashboard.
func NewMetricsHandler(dashboard Dashboard) *MetricsHandler {
	return &MetricsHandler{dashboard: dashboard}
}

// MetricsResponse carries both the raw counters and the formatted cards.
type MetricsResponse struct {
	Metrics models.MetricsSnapshot `json:"metrics"`
	Stats   []views.Stat           `json:"stats"`
}

// RegisterRoutes mounts the metrics endpoint on r, which is expected to be
// the /console subrouter.
func (h *MetricsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", h.GetMetrics).Methods(http.MethodGet)
}

// GetMetrics handles GET /console/metrics. It never calls the gateway; the
// poller keeps the snapshot current.
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, MetricsResponse{
		Metrics: h.dashboard.Snapshot(),
		Stats:   h.dashboard.Stats(),
	})
}
