package filterservice

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
)

// Metrics records per-filter request outcomes and latency.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the client collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filter_requests_total",
			Help: "Filter requests sent to the filtering service, by filter and outcome.",
		}, []string{"filter", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filter_request_duration_seconds",
			Help:    "Round-trip latency of filter requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"filter"}),
	}
}

func (m *Metrics) observe(filter, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(filter, outcome).Inc()
	m.duration.WithLabelValues(filter).Observe(elapsed.Seconds())
}

// Summarize totals filter_requests_total by outcome from g.
func Summarize(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	totals := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "filter_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					totals[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return totals, nil
}
