package limiter

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRecorder captures metrics in memory for assertion
type MockRecorder struct {
	Counters map[string]float64
	Timings  map[string][]float64
	Outcomes []string
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Counters: make(map[string]float64),
		Timings:  make(map[string][]float64),
	}
}

func (m *MockRecorder) Add(name string, value float64, tags map[string]string) {
	m.Counters[name] += value
	if outcome, ok := tags["outcome"]; ok {
		m.Outcomes = append(m.Outcomes, outcome)
	}
}

func (m *MockRecorder) Observe(name string, value float64, tags map[string]string) {
	m.Timings[name] = append(m.Timings[name], value)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrRateLimitExceeded, "rate_limit_exceeded"},
		{opError("consume", client, ErrClientBlocked), "client_is_blocked_by_admin"},
		{fmt.Errorf("wrapped: %w", ErrNotRegistered), "client_not_registered"},
		{fmt.Errorf("dial tcp: connection refused"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcome(tt.err))
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.Add(MetricCall, 1, map[string]string{"op": "consume", "outcome": "ok"})
	rec.Add(MetricCall, 1, map[string]string{"op": "consume", "outcome": "ok"})
	rec.Add(MetricCall, 1, map[string]string{"op": "consume", "outcome": "rate_limit_exceeded"})
	rec.Add("unrelated", 1, nil)
	rec.Observe(MetricLatency, 0.002, map[string]string{"op": "consume"})

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.calls.WithLabelValues("consume", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.calls.WithLabelValues("consume", "rate_limit_exceeded")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.latency))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "collectors cannot be registered twice")
}
