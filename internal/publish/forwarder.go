package publish

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	logpkg "github.com/benvon/gateway-console/internal/logger"
	"github.com/benvon/gateway-console/internal/metricspoller"
	"github.com/benvon/gateway-console/internal/models"
	"go.uber.org/zap"
)

// DefaultPublishTimeout bounds one publish to one broker.
const DefaultPublishTimeout = 5 * time.Second

// Forwarder relays poller snapshots to every configured publisher. It keeps
// at most one pending snapshot: if publishing falls behind, older snapshots
// are replaced by newer ones.
type Forwarder struct {
	publishers []Publisher
	log        *zap.Logger
	clock      clock.Clock
	timeout    time.Duration
	pending    chan models.MetricsSnapshot
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderClock stamps messages using c.
func WithForwarderClock(c clock.Clock) ForwarderOption {
	return func(f *Forwarder) {
		f.clock = c
	}
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewForwarder creates a forwarder over publishers.
func NewForwarder(log *zap.Logger, publishers []Publisher, opts ...ForwarderOption) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Forwarder{
		publishers: publishers,
		log:        log,
		clock:      clock.New(),
		timeout:    DefaultPublishTimeout,
		pending:    make(chan models.MetricsSnapshot, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Listener returns a poller listener that queues each snapshot without
// blocking the poll loop.
func (f *Forwarder) Listener() metricspoller.Listener {
	return func(snap models.MetricsSnapshot) {
		for {
			select {
			case f.pending <- snap:
				return
			default:
			}
			select {
			case <-f.pending:
				f.log.Debug("snapshot_superseded_before_publish")
			default:
			}
		}
	}
}

// Run publishes queued snapshots until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	f.log.Info("snapshot_forwarder_started", zap.Int("publishers", len(f.publishers)))
	for {
		select {
		case <-ctx.Done():
			f.log.Info("snapshot_forwarder_stopped")
			return
		case snap := <-f.pending:
			f.Forward(ctx, snap)
		}
	}
}

// Forward publishes snap to every publisher. Failures are logged and dropped;
// the returned error joins them for callers that want it.
func (f *Forwarder) Forward(ctx context.Context, snap models.MetricsSnapshot) error {
	body, err := NewSnapshotMessage(snap, f.clock.Now()).Encode()
	if err != nil {
		f.log.Error("failed_to_encode_snapshot", zap.Error(err))
		return err
	}

	var errs []error
	for _, p := range f.publishers {
		pubCtx, cancel := context.WithTimeout(ctx, f.timeout)
		err := p.Publish(pubCtx, body)
		cancel()
		if err != nil {
			f.log.Warn("failed_to_publish_snapshot",
				zap.String("publisher", p.Name()),
				zap.String("error", logpkg.SanitizeError(err)),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HealthCheck reports the first unhealthy publisher.
func (f *Forwarder) HealthCheck(ctx context.Context) error {
	for _, p := range f.publishers {
		if err := p.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every publisher.
func (f *Forwarder) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
