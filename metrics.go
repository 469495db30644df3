package sagascope

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instrumentation for compensation lifecycle
// events. It is purely a subscriber; the engine itself carries no metric
// state. Subscribe the handler returned by Handler on any scope whose
// activity should be counted.
type Metrics struct {
	events    *prometheus.CounterVec
	durations prometheus.Histogram
}

// NewMetrics creates collectors and registers them with reg. A nil registerer
// leaves the collectors unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sagascope",
			Name:      "compensation_events_total",
			Help:      "Compensation lifecycle events by type.",
		}, []string{"event"}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sagascope",
			Name:      "compensation_duration_seconds",
			Help:      "Duration of attempted compensations.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.events, m.durations)
	}
	return m
}

// Handler returns an EventHandler that feeds the collectors.
func (m *Metrics) Handler() EventHandler {
	return func(event Event) {
		m.events.WithLabelValues(event.Type.String()).Inc()
		switch event.Type {
		case EventSucceeded, EventFailed:
			m.durations.Observe(event.Duration.Seconds())
		}
	}
}
