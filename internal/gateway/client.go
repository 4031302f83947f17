// Package gateway is the HTTP surface of the traffic gateway's admin API:
// read and write the settings document and read the operational counters.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/gateway-console/internal/logger"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/request"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// SettingsPath serves the gateway configuration document (GET and POST).
	SettingsPath = "/api/settings"
	// MetricsPath serves the gateway counters.
	MetricsPath = "/api/metrics"
	// RequestIDHeader carries a per-call identifier for correlating gateway logs.
	RequestIDHeader = "X-Request-ID"

	// DefaultBaseURL is where a locally started gateway listens.
	DefaultBaseURL = "http://localhost:8080"

	tracerName = "github.com/benvon/gateway-console/internal/gateway"
)

// Client talks to one gateway instance.
type Client struct {
	rest   *resty.Client
	tracer trace.Tracer
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request. Zero leaves the transport default in place.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

// WithHTTPClient swaps the underlying transport, e.g. an httptest server client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil && hc.Transport != nil {
			c.rest.SetTransport(hc.Transport)
		}
	}
}

// WithLogger routes request diagnostics to log.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
			c.rest.SetLogger(log.Sugar())
		}
	}
}

// NewClient creates a gateway client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	c := &Client{
		rest:   rc,
		tracer: otel.Tracer(tracerName),
		log:    zap.NewNop(),
	}
	rc.SetLogger(c.log.Sugar())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the gateway origin this client targets.
func (c *Client) BaseURL() string {
	return c.rest.BaseURL
}

// GetSettings reads the full gateway configuration.
func (c *Client) GetSettings(ctx context.Context) (models.GatewayConfiguration, error) {
	var cfg models.GatewayConfiguration
	body, err := c.do(ctx, "get_settings", http.MethodGet, SettingsPath, nil)
	if err != nil {
		return cfg, err
	}
	if err := decodeComplete(body, &cfg, settingsKeys()...); err != nil {
		return cfg, &TransportError{Op: "get_settings", Err: err}
	}
	return cfg, nil
}

// SaveSettings submits the whole configuration. There is no partial update.
func (c *Client) SaveSettings(ctx context.Context, cfg models.GatewayConfiguration) error {
	_, err := c.do(ctx, "save_settings", http.MethodPost, SettingsPath, cfg)
	return err
}

// GetMetrics reads the gateway counters.
func (c *Client) GetMetrics(ctx context.Context) (models.MetricsSnapshot, error) {
	var snap models.MetricsSnapshot
	body, err := c.do(ctx, "get_metrics", http.MethodGet, MetricsPath, nil)
	if err != nil {
		return snap, err
	}
	if err := decodeComplete(body, &snap, "total_requests", "cache_hits", "threats_blocked"); err != nil {
		return models.MetricsSnapshot{}, &TransportError{Op: "get_metrics", Err: err}
	}
	if snap.TotalRequests < 0 || snap.CacheHits < 0 || snap.ThreatsBlocked < 0 {
		return models.MetricsSnapshot{}, &TransportError{Op: "get_metrics", Err: fmt.Errorf("%w: %+v", errNegativeCounter, snap)}
	}
	return snap, nil
}

// Ping checks that the metrics endpoint answers with a success status.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, MetricsPath, nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	requestID := request.IDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx, span := c.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("gateway.request_id", requestID),
		),
	)
	defer span.End()

	req := c.rest.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, requestID)
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &TransportError{Op: op, Err: err}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode()))
	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode()))
		return nil, &RejectedError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Body:       logger.SanitizeBody(resp.Body()),
		}
	}

	c.log.Debug("gateway_request_completed",
		zap.String("op", op),
		zap.String("request_id", requestID),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", resp.Time()),
	)
	return resp.Body(), nil
}

func settingsKeys() []string {
	fields := models.Fields()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = string(f)
	}
	return keys
}

// decodeComplete unmarshals body into out after checking every key in
// required is present and not null.
func decodeComplete(body []byte, out any, required ...string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	for _, key := range required {
		value, ok := raw[key]
		if !ok {
			return fmt.Errorf("%w: %s", errMissingField, key)
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return fmt.Errorf("%w: %s is null", errMissingField, key)
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
