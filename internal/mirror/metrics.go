package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors updated by Run.
type Metrics struct {
	runs       *prometheus.CounterVec
	dispatched prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postmirror",
			Name:      "runs_total",
			Help:      "Mirror runs by outcome.",
		}, []string{"outcome"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "postmirror",
			Name:      "posts_dispatched_total",
			Help:      "Posts delivered to the webhook.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "postmirror",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a mirror run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.dispatched, m.duration)
	}
	return m
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) delivered() {
	if m == nil {
		return
	}
	m.dispatched.Inc()
}
