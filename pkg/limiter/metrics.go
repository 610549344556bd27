package limiter

import (
	"errors"
	"strings"
	"time"
)

// Metric names emitted by Service.
const (
	MetricCall    = "ratelimit.call"
	MetricLatency = "ratelimit.latency"
)

// MetricsRecorder receives counters and latency observations.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if r.recorder != nil' in our hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

func (s *Service) record(op string, start time.Time, err error) {
	s.recorder.Add(MetricCall, 1, map[string]string{"op": op, "outcome": outcome(err)})
	s.recorder.Observe(MetricLatency, time.Since(start).Seconds(), map[string]string{"op": op})
}

var outcomes = []error{
	ErrInvalidConfig,
	ErrUnauthorized,
	ErrProgramPaused,
	ErrClientBlocked,
	ErrRateLimitExceeded,
	ErrBurstLimitExceeded,
	ErrNotInitialized,
	ErrAlreadyInitialized,
	ErrNotRegistered,
	ErrAlreadyRegistered,
}

// outcome maps err onto a bounded label value.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, known := range outcomes {
		if errors.Is(err, known) {
			return strings.ReplaceAll(known.Error(), " ", "_")
		}
	}
	return "error"
}
