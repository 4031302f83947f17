package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/request"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
	}{
		{name: "GET request", method: "GET", path: "/console/settings", handlerStatus: http.StatusOK},
		{name: "PATCH request", method: "PATCH", path: "/console/settings", handlerStatus: http.StatusNoContent},
		{name: "404 request", method: "GET", path: "/notfound", handlerStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.InfoLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage("http_request").All()
			if len(entries) != 1 {
				t.Fatalf("Expected one http_request entry, got %d", len(entries))
			}
			if got := entries[0].ContextMap()["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("Expected logged status %d, got %v", tt.handlerStatus, got)
			}
		})
	}
}

func TestLoggingResponseWriter_ImplicitOK(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test"))
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	Logging(zap.New(core))(handler).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	if got := logs.All()[0].ContextMap()["status_code"]; got != int64(http.StatusOK) {
		t.Errorf("Expected logged status 200 after implicit header, got %v", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "keeps valid id", incoming: "7f1c0e8a-3b7a-4b43-9a3e-2b1f1d1c0a99", keep: true},
		{name: "replaces garbage", incoming: "not-a-uuid\r\nX-Injected: 1", keep: false},
		{name: "generates when missing", incoming: "", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = request.IDFromContext(r.Context())
			})
			req := httptest.NewRequest("GET", "/", nil)
			if tt.incoming != "" {
				req.Header.Set(gateway.RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			RequestID(handler).ServeHTTP(w, req)

			if seen == "" || w.Header().Get(gateway.RequestIDHeader) != seen {
				t.Fatalf("Expected echoed request ID, got context %q header %q", seen, w.Header().Get(gateway.RequestIDHeader))
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("Expected %q to be kept, got %q", tt.incoming, seen)
			}
			if !tt.keep && seen == tt.incoming {
				t.Errorf("Expected %q to be replaced", tt.incoming)
			}
		})
	}
}
