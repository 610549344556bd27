package limiter

import (
	"log/slog"
	"time"
)

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRecorder injects a metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the logger used for transition logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix (default "limiter:").
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// WithTimeout bounds every Redis round trip (default 5s).
func WithTimeout(d time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.timeout = d
	}
}

// WithMaxRetries bounds optimistic transaction retries (default 16).
func WithMaxRetries(n int) RedisOption {
	return func(r *RedisStore) {
		r.maxRetries = n
	}
}
