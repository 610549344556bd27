// Package limiter provides a multi-tenant, fixed-window request limiter with
// administrative overrides.
//
// The primary entry point is Service:
//
//	dec, err := svc.Consume(ctx, caller, owner)
//
// The returned Decision reports whether the request was admitted, how many
// requests remain in the current window, and timing hints for callers that want
// to set rate-limit headers (for example, Retry-After).
//
// # Records
//
// Two records make up the state:
//
//   - Policy: one per deployment. Holds the administrator identity, the limits
//     (MaxRequests per WindowSeconds, BurstLimit) and a Paused flag. The limits
//     must satisfy MaxRequests > 0, WindowSeconds > 0 and
//     BurstLimit >= MaxRequests; Initialize and UpdateConfig reject anything
//     else with ErrInvalidConfig.
//   - Bucket: one per registered client. Holds RequestCount and WindowStart for
//     the current window, a lifetime TotalRequests counter and a Blocked flag.
//
// # Windows
//
// Windows are tumbling, not sliding. When a request arrives at or after
// WindowStart+WindowSeconds the bucket starts a new window at that instant with
// a zero count. Idle windows do not accumulate credit.
//
// # Consumption
//
// Consume checks, in order: the caller owns the bucket (ErrUnauthorized), the
// policy is not paused (ErrProgramPaused), the bucket is not blocked
// (ErrClientBlocked). It then rolls the window if needed and checks
// RequestCount against MaxRequests (ErrRateLimitExceeded) and BurstLimit
// (ErrBurstLimitExceeded). On success both counters are incremented.
//
// A rejected request never changes the bucket, except that a window rollover
// computed before a quota rejection is kept.
//
// # Administration
//
// The identity stored in Policy.Admin may UpdateConfig, TogglePause,
// ResetClient and BlockClient. Any other caller gets ErrUnauthorized and no
// state changes. ResetClient also clears Blocked; there is no separate unblock.
//
// # Backends
//
// Service runs the transitions against a Store:
//
//   - MemoryStore: an in-process store backed by a Go map with one mutex per
//     bucket. Useful for tests and single-instance deployments.
//
//   - RedisStore: records are fixed-size binary strings (see MarshalBinary)
//     under keys prefixed with "limiter:". Updates are WATCH/MULTI transactions
//     retried on conflict.
//
//   - SQLStore: GORM models in the rate_limit_policies and client_buckets
//     tables. Updates lock the row inside a transaction.
//
// # Concurrency
//
// Service is safe for concurrent use. Every update touches exactly one record
// and is serialized by the Store; different buckets never contend with each
// other. Consume reads the policy once at the start of the call, so a
// concurrent UpdateConfig applies either before or after it, never halfway.
//
// # Errors
//
// All errors returned by Service are *OpError values wrapping one of the
// package sentinels (or a backend error). Use errors.Is to classify them.
// Nothing is retried inside the package.
//
// # Configuration
//
// Service and RedisStore use functional options:
//
//	store, _ := NewRedisStore(client,
//		WithPrefix("myapp:rate:"),
//		WithTimeout(2*time.Second),
//	)
//	svc := NewService(store,
//		WithRecorder(myMetrics),
//		WithLogger(slog.Default()),
//	)
package limiter
