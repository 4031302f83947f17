package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benvon/gateway-console/internal/configstore"
	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/gatewaystub"
	"github.com/benvon/gateway-console/internal/metricspoller"
	"github.com/benvon/gateway-console/internal/models"
	"gopkg.in/yaml.v3"
)

func newTestStub(t *testing.T) (*gatewaystub.Server, string) {
	t.Helper()
	stub := gatewaystub.New(nil)
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	return stub, srv.URL
}

func run(t *testing.T, gatewayURL string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--gateway-url", gatewayURL, "--timeout", "2s"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSettingsShow(t *testing.T) {
	t.Parallel()

	stub, url := newTestStub(t)
	cfg := models.DefaultGatewayConfiguration()
	cfg.RateLimitEnabled = false
	cfg.TargetBackendURL = "http://orders:8000"
	stub.SetSettings(cfg)

	t.Run("text", func(t *testing.T) {
		out, err := run(t, url, "settings", "show")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !strings.Contains(out, "Original Backend URL: http://orders:8000") {
			t.Errorf("Expected backend URL in output, got:\n%s", out)
		}
		if strings.Contains(out, "Requests per Minute") {
			t.Errorf("Expected limit hidden while rate limiting is off, got:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, url, "settings", "show", "-o", "json")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var got models.GatewayConfiguration
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("Failed to decode output: %v", err)
		}
		if got != cfg {
			t.Errorf("Expected %+v, got %+v", cfg, got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := run(t, url, "settings", "show", "-o", "yaml")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var got models.GatewayConfiguration
		if err := yaml.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("Failed to decode output: %v", err)
		}
		if got != cfg {
			t.Errorf("Expected %+v, got %+v", cfg, got)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := run(t, url, "settings", "show", "-o", "xml"); err == nil {
			t.Error("Expected error for unsupported format")
		}
	})
}

func TestSettingsShow_GatewayDown(t *testing.T) {
	t.Parallel()

	stub, url := newTestStub(t)
	stub.SetStatus(gatewaystub.RouteGetSettings, http.StatusInternalServerError)

	_, err := run(t, url, "settings", "show")
	if !gateway.IsRejected(err) {
		t.Errorf("Expected a rejected fetch, got %v", err)
	}
}

func TestSettingsSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, cfg models.GatewayConfiguration)
	}{
		{
			name: "integer and string fields",
			args: []string{"rate_limit_per_minute=250", "target_backend_url=http://api:3001"},
			check: func(t *testing.T, cfg models.GatewayConfiguration) {
				if cfg.RateLimitPerMinute != 250 || cfg.TargetBackendURL != "http://api:3001" {
					t.Errorf("Unexpected saved settings %+v", cfg)
				}
			},
		},
		{
			name: "leading integer is kept",
			args: []string{"rate_limit_per_minute=42rpm"},
			check: func(t *testing.T, cfg models.GatewayConfiguration) {
				if cfg.RateLimitPerMinute != 42 {
					t.Errorf("Expected 42, got %d", cfg.RateLimitPerMinute)
				}
			},
		},
		{name: "missing equals", args: []string{"rate_limit_per_minute"}, wantErr: true},
		{name: "unknown field", args: []string{"colour=blue"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub, url := newTestStub(t)
			out, err := run(t, url, append([]string{"settings", "set"}, tt.args...)...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if stub.Hits(gatewaystub.RouteSaveSettings) != 0 {
					t.Error("Expected no save after a failed edit")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !strings.Contains(out, "Settings saved successfully!") {
				t.Errorf("Expected success message, got:\n%s", out)
			}
			tt.check(t, stub.Settings())
		})
	}
}

func TestSettingsToggle(t *testing.T) {
	t.Parallel()

	stub, url := newTestStub(t)
	if _, err := run(t, url, "settings", "toggle", "cache_enabled", "waf_enabled"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got := stub.Settings()
	if got.CacheEnabled || got.WAFEnabled {
		t.Errorf("Expected both features off, got %+v", got)
	}
	if !got.RateLimitEnabled || !got.IdempotencyEnabled {
		t.Errorf("Expected other features untouched, got %+v", got)
	}

	_, err := run(t, url, "settings", "toggle", "target_backend_url")
	if !errors.Is(err, configstore.ErrNotAFeature) {
		t.Errorf("Expected ErrNotAFeature, got %v", err)
	}
}

func TestSettingsSave_Outcomes(t *testing.T) {
	t.Parallel()

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		stub, url := newTestStub(t)
		stub.SetStatus(gatewaystub.RouteSaveSettings, http.StatusBadRequest)

		out, err := run(t, url, "settings", "toggle", "cache_enabled")
		if !errors.Is(err, errSaveNotAccepted) || !gateway.IsRejected(err) {
			t.Fatalf("Expected a rejected save, got %v", err)
		}
		if !strings.Contains(out, "Failed to save settings.") {
			t.Errorf("Expected rejection message, got:\n%s", out)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		stub := gatewaystub.New(nil)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				hj, ok := w.(http.Hijacker)
				if !ok {
					t.Error("Expected a hijackable response writer")
					return
				}
				conn, _, err := hj.Hijack()
				if err == nil {
					_ = conn.Close()
				}
				return
			}
			stub.Handler().ServeHTTP(w, r)
		}))
		defer srv.Close()

		out, err := run(t, srv.URL, "settings", "toggle", "cache_enabled")
		if !errors.Is(err, errSaveNotAccepted) || !gateway.IsTransport(err) {
			t.Fatalf("Expected a transport failure, got %v", err)
		}
		if !strings.Contains(out, "Error saving settings.") {
			t.Errorf("Expected transport message, got:\n%s", out)
		}
	})
}

func TestSettingsApply(t *testing.T) {
	t.Parallel()

	profile := "rate_limit_enabled: false\nrate_limit_per_minute: 600\ntarget_backend_url: http://shop:9000\n"
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(profile), 0o600); err != nil {
		t.Fatalf("Failed to write profile: %v", err)
	}

	stub, url := newTestStub(t)
	if _, err := run(t, url, "settings", "apply", "-f", path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got := stub.Settings()
	want := models.DefaultGatewayConfiguration()
	want.RateLimitEnabled = false
	want.RateLimitPerMinute = 600
	want.TargetBackendURL = "http://shop:9000"
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestParseProfile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []models.Field
		wantErr bool
	}{
		{name: "form order", input: "waf_enabled: true\ntarget_backend_url: http://a\n", want: []models.Field{models.FieldTargetBackendURL, models.FieldWAFEnabled}},
		{name: "empty", input: "", want: nil},
		{name: "unknown field", input: "colour: blue\n", wantErr: true},
		{name: "not a mapping", input: "- a\n- b\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entries, err := parseProfile([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("Expected %d entries, got %d", len(tt.want), len(entries))
			}
			for i, e := range entries {
				if e.field != tt.want[i] {
					t.Errorf("Entry %d: expected %s, got %s", i, tt.want[i], e.field)
				}
			}
		})
	}
}

func TestMetricsShow(t *testing.T) {
	t.Parallel()

	stub, url := newTestStub(t)
	stub.SetMetrics(models.MetricsSnapshot{TotalRequests: 1234567, CacheHits: 1000, ThreatsBlocked: 3})

	out, err := run(t, url, "metrics", "show")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "1,234,567") {
		t.Errorf("Expected grouped total, got:\n%s", out)
	}

	out, err = run(t, url, "metrics", "show", "-o", "json")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var got metricsOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	if got.Metrics.CacheHits != 1000 || len(got.Stats) != 3 {
		t.Errorf("Unexpected output %+v", got)
	}
}

func TestWatchMetrics_StopsAfterCount(t *testing.T) {
	t.Parallel()

	stub, url := newTestStub(t)
	stub.SetMetrics(models.MetricsSnapshot{TotalRequests: 9})
	poller := metricspoller.New(gateway.NewClient(url, gateway.WithTimeout(2*time.Second)), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := watchMetrics(ctx, cancel, poller, 10*time.Millisecond, 2, &out); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ctx.Err() != context.Canceled {
		t.Fatalf("Expected watch to stop on count, got %v", ctx.Err())
	}
	if n := strings.Count(out.String(), "Overview"); n != 2 {
		t.Errorf("Expected 2 redraws, got %d", n)
	}
	if poller.Running() {
		t.Error("Expected poller stopped after watch")
	}
}
