package console

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benvon/gateway-console/internal/configstore"
	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/gatewaystub"
	"github.com/benvon/gateway-console/internal/metricspoller"
	"github.com/benvon/gateway-console/internal/middleware"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/telemetry"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/prometheus/client_golang/prometheus"
)

type consoleFixture struct {
	stub      *gatewaystub.Server
	handler   http.Handler
	dashboard *views.DashboardView
}

func newConsoleFixture(t *testing.T, rate string) *consoleFixture {
	t.Helper()

	stub := gatewaystub.New(nil)
	stub.SetMetrics(models.MetricsSnapshot{TotalRequests: 4200, CacheHits: 1200, ThreatsBlocked: 7})
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	client := gateway.NewClient(srv.URL, gateway.WithTimeout(2*time.Second))
	reg := prometheus.NewRegistry()
	recorder := telemetry.NewRecorder(reg)

	polled := make(chan struct{}, 1)
	poller := metricspoller.New(client, nil, metricspoller.WithObserver(recorder))
	poller.Subscribe(func(models.MetricsSnapshot) {
		select {
		case polled <- struct{}{}:
		default:
		}
	})

	settings := views.NewSettingsView(configstore.New(client, nil, configstore.WithObserver(recorder)), nil)
	dashboard := views.NewDashboardView(poller, time.Hour, nil)
	if err := settings.Init(context.Background()); err != nil {
		t.Fatalf("settings Init: %v", err)
	}
	if err := dashboard.Init(context.Background()); err != nil {
		t.Fatalf("dashboard Init: %v", err)
	}
	t.Cleanup(settings.Teardown)
	t.Cleanup(dashboard.Teardown)

	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for first poll")
	}

	var limit func(http.Handler) http.Handler
	if rate != "" {
		var err error
		limit, err = middleware.RateLimit(rate, nil)
		if err != nil {
			t.Fatalf("RateLimit: %v", err)
		}
	}

	return &consoleFixture{
		stub:      stub,
		dashboard: dashboard,
		handler: NewRouter(RouterConfig{
			Settings:    settings,
			Dashboard:   dashboard,
			Gatherer:    reg,
			RateLimit:   limit,
			FrontendURL: "https://console.example.com",
		}),
	}
}

func (f *consoleFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "192.0.2.10:4000"
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "prometheus", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "settings", method: http.MethodGet, path: "/console/settings", want: http.StatusOK},
		{name: "edit field", method: http.MethodPatch, path: "/console/settings", body: `{"name":"rate_limit_per_minute","value":"300"}`, want: http.StatusOK},
		{name: "toggle feature", method: http.MethodPut, path: "/console/settings/features/cache_enabled", body: `{"enabled":false}`, want: http.StatusOK},
		{name: "reload", method: http.MethodPost, path: "/console/settings/reload", want: http.StatusOK},
		{name: "save", method: http.MethodPost, path: "/console/settings/save", want: http.StatusOK},
		{name: "dashboard", method: http.MethodGet, path: "/console/metrics", want: http.StatusOK},
		{name: "wrong method", method: http.MethodDelete, path: "/console/settings", want: http.StatusMethodNotAllowed},
		{name: "unknown route", method: http.MethodGet, path: "/api/settings", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("%s %s: expected %d, got %d: %s", tt.method, tt.path, tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRouter_DashboardServesPolledSnapshot(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t, "")
	w := f.do(http.MethodGet, "/console/metrics", "")

	var body struct {
		Data struct {
			Metrics models.MetricsSnapshot `json:"metrics"`
			Stats   []views.Stat           `json:"stats"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Data.Metrics.TotalRequests != 4200 {
		t.Errorf("Expected polled total 4200, got %d", body.Data.Metrics.TotalRequests)
	}
	if len(body.Data.Stats) != 3 || body.Data.Stats[0].Value != "4,200" {
		t.Errorf("Expected formatted cards, got %+v", body.Data.Stats)
	}
}

func TestRouter_ExposesOutcomeCounters(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t, "")
	w := f.do(http.MethodGet, "/metrics", "")

	for _, want := range []string{
		`gateway_console_settings_fetches_total{outcome="ok"} 1`,
		`gateway_console_metrics_polls_total{outcome="ok"}`,
	} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("Expected %q in exposition", want)
		}
	}
}

func TestRouter_RateLimitsMutationsOnly(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t, "1-M")

	if w := f.do(http.MethodPost, "/console/settings/reload", ""); w.Code != http.StatusOK {
		t.Fatalf("Expected first mutation to pass, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/console/settings/reload", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 on second mutation, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/console/settings", ""); w.Code != http.StatusOK {
		t.Errorf("Expected reads to stay available, got %d", w.Code)
	}
}

func TestRouter_CrossCuttingHeaders(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t, "")

	w := f.do(http.MethodGet, "/console/settings", "")
	if id := w.Header().Get(gateway.RequestIDHeader); id == "" {
		t.Error("Expected a request ID on the response")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected security headers, got X-Content-Type-Options %q", got)
	}

	req := httptest.NewRequest(http.MethodOptions, "/console/settings/save", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre := httptest.NewRecorder()
	f.handler.ServeHTTP(pre, req)
	if got := pre.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("Expected preflight to allow the frontend, got %q", got)
	}
}
