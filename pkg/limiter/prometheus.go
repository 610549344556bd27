package limiter

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder is a MetricsRecorder that exports the Service metrics as
// Prometheus collectors. Names other than MetricCall and MetricLatency are
// dropped.
type PrometheusRecorder struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the limiter collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_calls_total",
			Help: "Limiter operations by outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_latency_seconds",
			Help:    "Limiter operation latency including store round trips.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{r.calls, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	if name != MetricCall {
		return
	}
	r.calls.WithLabelValues(tags["op"], tags["outcome"]).Add(value)
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name != MetricLatency {
		return
	}
	r.latency.WithLabelValues(tags["op"]).Observe(value)
}
