package assist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for the request counter.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics counts enrichment requests on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the enrichment collectors on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vigil",
				Subsystem: "enrichment",
				Name:      "requests_total",
				Help:      "Model requests made to explain warnings, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "enrichment",
			Name:      "duration_seconds",
			Help:      "Time spent on each model request.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	m.registry.MustRegister(m.requests, m.duration)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteFile writes the metrics to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observe(err error, d time.Duration) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}
