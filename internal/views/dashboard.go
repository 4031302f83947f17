package views

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benvon/gateway-console/internal/metricspoller"
	"github.com/benvon/gateway-console/internal/models"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MetricsSource is the part of the metrics poller the dashboard uses.
type MetricsSource interface {
	Init(ctx context.Context, interval time.Duration) error
	Teardown()
	Snapshot() models.MetricsSnapshot
	Subscribe(l metricspoller.Listener) (unsubscribe func())
}

// Stat is one dashboard card.
type Stat struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DashboardView shows the live gateway counters.
type DashboardView struct {
	source   MetricsSource
	log      *zap.Logger
	guard    *MountGuard
	redraw   func()
	interval time.Duration

	mu          sync.Mutex
	unsubscribe func()
}

// NewDashboardView creates an unmounted dashboard refreshed every interval.
func NewDashboardView(source MetricsSource, interval time.Duration, log *zap.Logger, opts ...Option) *DashboardView {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = metricspoller.DefaultInterval
	}
	var o viewOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &DashboardView{
		source:   source,
		log:      log,
		guard:    NewMountGuard(),
		redraw:   o.redraw,
		interval: interval,
	}
}

// Init mounts the dashboard and starts polling.
func (v *DashboardView) Init(ctx context.Context) error {
	v.guard.Mount()
	unsubscribe := v.source.Subscribe(func(models.MetricsSnapshot) {
		if v.redraw != nil && v.guard.Ready() {
			v.redraw()
		}
	})
	v.mu.Lock()
	v.unsubscribe = unsubscribe
	v.mu.Unlock()

	if err := v.source.Init(ctx, v.interval); err != nil {
		unsubscribe()
		return fmt.Errorf("start metrics polling: %w", err)
	}
	v.log.Debug("dashboard_mounted", zap.Duration("interval", v.interval))
	return nil
}

// Teardown stops polling. No snapshot update reaches the view afterwards.
func (v *DashboardView) Teardown() {
	v.mu.Lock()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	v.source.Teardown()
}

// Mounted is closed once the dashboard renders real content.
func (v *DashboardView) Mounted() <-chan struct{} {
	return v.guard.Done()
}

// Snapshot is the counters currently shown.
func (v *DashboardView) Snapshot() models.MetricsSnapshot {
	return v.source.Snapshot()
}

// Stats returns the three cards for the current snapshot.
func (v *DashboardView) Stats() []Stat {
	return FormatStats(v.source.Snapshot())
}

var statPrinter = message.NewPrinter(language.English)

// FormatStats renders snap as dashboard cards with grouped thousands.
func FormatStats(snap models.MetricsSnapshot) []Stat {
	return []Stat{
		{Name: "Total Requests", Value: statPrinter.Sprintf("%d", snap.TotalRequests)},
		{Name: "Cache Hits", Value: statPrinter.Sprintf("%d", snap.CacheHits)},
		{Name: "Threats Blocked", Value: statPrinter.Sprintf("%d", snap.ThreatsBlocked)},
	}
}

// Render writes the cards, or nothing at all until the view is mounted.
func (v *DashboardView) Render(w io.Writer) error {
	if !v.guard.Ready() {
		return nil
	}

	var b strings.Builder
	b.WriteString("Overview\n")
	b.WriteString("Real-time metrics for your API Gateway.\n\n")
	for _, s := range v.Stats() {
		fmt.Fprintf(&b, "  %-16s %s\n", s.Name, s.Value)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}
