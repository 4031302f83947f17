package telemetry

import (
	"time"

	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for gateway calls.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport"
)

// Recorder counts configuration and metrics synchronization outcomes in Prometheus.
type Recorder struct {
	fetches      *prometheus.CounterVec
	saves        *prometheus.CounterVec
	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
}

// NewRecorder registers the console collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway_console",
			Name:      "settings_fetches_total",
			Help:      "Gateway settings fetches by outcome.",
		}, []string{"outcome"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway_console",
			Name:      "settings_saves_total",
			Help:      "Gateway settings saves by outcome.",
		}, []string{"outcome"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway_console",
			Name:      "metrics_polls_total",
			Help:      "Gateway metrics polls by outcome.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway_console",
			Name:      "metrics_poll_duration_seconds",
			Help:      "Latency of gateway metrics polls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.fetches, r.saves, r.polls, r.pollDuration)
	return r
}

// ObserveFetch counts one settings fetch.
func (r *Recorder) ObserveFetch(err error) {
	r.fetches.WithLabelValues(Classify(err)).Inc()
}

// ObserveSave counts one settings save.
func (r *Recorder) ObserveSave(err error) {
	r.saves.WithLabelValues(Classify(err)).Inc()
}

// ObservePoll counts one metrics poll and its latency.
func (r *Recorder) ObservePoll(err error, d time.Duration) {
	r.polls.WithLabelValues(Classify(err)).Inc()
	r.pollDuration.Observe(d.Seconds())
}

// Classify maps a gateway call error onto an outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case gateway.IsRejected(err):
		return OutcomeRejected
	default:
		return OutcomeTransport
	}
}
