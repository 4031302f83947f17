// Package metricspoller keeps the latest gateway counters, refreshed on a
// fixed cadence until stopped.
package metricspoller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/models"
	"go.uber.org/zap"
)

// DefaultInterval is the dashboard's refresh cadence.
const DefaultInterval = 5 * time.Second

// ErrAlreadyStarted is returned by Start while a schedule is running.
var ErrAlreadyStarted = errors.New("metrics poller already started")

// MetricsClient reads the gateway counters.
type MetricsClient interface {
	GetMetrics(ctx context.Context) (models.MetricsSnapshot, error)
}

// Observer receives the outcome and latency of every poll.
type Observer interface {
	ObservePoll(err error, d time.Duration)
}

// Listener is called with each new snapshot.
type Listener func(snap models.MetricsSnapshot)

// Option configures a Poller.
type Option func(*Poller)

// WithClock drives the schedule from c instead of the wall clock.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithObserver reports poll outcomes to o.
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

type subscription struct {
	id uint64
	fn Listener
}

// Poller owns one metrics snapshot. It polls without backoff, jitter or a
// retry cap: an unreachable gateway is polled forever at the same cadence.
type Poller struct {
	client   MetricsClient
	log      *zap.Logger
	clock    clock.Clock
	observer Observer

	mu        sync.Mutex
	snapshot  models.MetricsSnapshot
	listeners []subscription
	nextID    uint64
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped poller with a zeroed snapshot.
func New(client MetricsClient, log *zap.Logger, opts ...Option) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Poller{
		client: client,
		log:    log,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init zeroes the snapshot and starts polling.
func (p *Poller) Init(ctx context.Context, interval time.Duration) error {
	p.mu.Lock()
	p.snapshot = models.MetricsSnapshot{}
	p.mu.Unlock()
	return p.Start(ctx, interval)
}

// Teardown stops polling, drops listeners and discards the snapshot.
func (p *Poller) Teardown() {
	p.Stop()
	p.mu.Lock()
	p.listeners = nil
	p.snapshot = models.MetricsSnapshot{}
	p.mu.Unlock()
}

// Start fetches once immediately and then every interval until Stop is
// called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ticker := p.clock.Ticker(interval)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.log.Debug("metrics_poller_started", zap.Duration("interval", interval))
	go p.loop(loopCtx, ticker, done)
	return nil
}

// Stop cancels the schedule, aborts a poll in flight and waits for the loop
// to exit. Once it returns no further poll runs and the snapshot no longer
// changes. Calling it again is a no-op. Do not call it from a Listener.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.log.Debug("metrics_poller_stopped")
}

// Running reports whether a schedule is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Run starts the poller, calls fn and stops the poller on every exit path,
// including errors and panics from fn.
func (p *Poller) Run(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	if err := p.Start(ctx, interval); err != nil {
		return err
	}
	defer p.Stop()
	return fn(ctx)
}

// Snapshot returns the latest counters.
func (p *Poller) Snapshot() models.MetricsSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Subscribe registers l for new snapshots. The returned func removes it.
func (p *Poller) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, subscription{id: id, fn: l})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, sub := range p.listeners {
				if sub.id == id {
					p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (p *Poller) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	defer p.release(done)

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.poll(ctx)
		}
	}
}

// release clears the schedule when the loop owning done exits on its own,
// so a cancelled parent context leaves the poller ready to start again.
func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != done {
		return
	}
	p.cancel()
	p.cancel, p.done = nil, nil
}

func (p *Poller) poll(ctx context.Context) {
	start := p.clock.Now()
	snap, err := p.client.GetMetrics(ctx)
	elapsed := p.clock.Since(start)

	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("failed_to_poll_gateway_metrics",
				zap.Error(err),
				zap.Bool("server_rejected", gateway.IsRejected(err)),
			)
		}
	} else {
		p.replace(ctx, snap)
	}

	if p.observer != nil && ctx.Err() == nil {
		p.observer.ObservePoll(err, elapsed)
	}
}

// replace swaps in snap unless the schedule has been stopped, then notifies
// listeners outside the lock.
func (p *Poller) replace(ctx context.Context, snap models.MetricsSnapshot) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.snapshot = snap
	listeners := make([]Listener, len(p.listeners))
	for i, sub := range p.listeners {
		listeners[i] = sub.fn
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}
