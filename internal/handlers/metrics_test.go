package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/gorilla/mux"
)

type stubDashboard struct {
	snap models.MetricsSnapshot
}

func (d stubDashboard) Snapshot() models.MetricsSnapshot { return d.snap }

func (d stubDashboard) Stats() []views.Stat {
	return []views.Stat{{Name: "Total Requests", Value: "1,500"}}
}

func TestMetricsHandler_GetMetrics(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	NewMetricsHandler(stubDashboard{snap: models.MetricsSnapshot{TotalRequests: 1500, CacheHits: 2}}).RegisterRoutes(r.PathPrefix("/console").Subrouter())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/console/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Data MetricsResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Data.Metrics.TotalRequests != 1500 || body.Data.Metrics.CacheHits != 2 {
		t.Errorf("Unexpected metrics %+v", body.Data.Metrics)
	}
	if len(body.Data.Stats) != 1 || body.Data.Stats[0].Value != "1,500" {
		t.Errorf("Unexpected stats %+v", body.Data.Stats)
	}
}
