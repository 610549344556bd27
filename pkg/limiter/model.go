package limiter

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"
)

// IdentityLen is the width of an Identity in bytes.
const IdentityLen = 32

// Identity is an authenticated caller or client key.
type Identity [IdentityLen]byte

// ParseIdentity decodes the 64-character hex form of an Identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != hex.EncodedLen(IdentityLen) {
		return id, fmt.Errorf("identity must be %d hex characters, got %d", hex.EncodedLen(IdentityLen), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid identity: %w", err)
	}
	return id, nil
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Config holds the tunable limits of a Policy.
type Config struct {
	MaxRequests   uint64 `json:"max_requests"`
	WindowSeconds int64  `json:"window_seconds"`
	BurstLimit    uint64 `json:"burst_limit"`
}

// Validate reports ErrInvalidConfig unless MaxRequests > 0, WindowSeconds > 0
// and BurstLimit >= MaxRequests.
func (c Config) Validate() error {
	switch {
	case c.MaxRequests == 0:
		return fmt.Errorf("%w: max_requests must be positive", ErrInvalidConfig)
	case c.WindowSeconds <= 0:
		return fmt.Errorf("%w: window_seconds must be positive", ErrInvalidConfig)
	case c.BurstLimit < c.MaxRequests:
		return fmt.Errorf("%w: burst_limit %d is below max_requests %d", ErrInvalidConfig, c.BurstLimit, c.MaxRequests)
	}
	return nil
}

func (c Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Policy is the deployment-wide rate limiting record.
type Policy struct {
	Admin  Identity `json:"admin"`
	Config
	Paused bool `json:"paused"`
}

// Bucket is the per-client counter record.
type Bucket struct {
	Owner         Identity `json:"owner"`
	RequestCount  uint64   `json:"request_count"`
	WindowStart   int64    `json:"window_start"`
	TotalRequests uint64   `json:"total_requests"`
	Blocked       bool     `json:"blocked"`
}

// Decision describes the bucket after a Consume call, whether or not the
// request was admitted.
type Decision struct {
	Allow      bool
	Bucket     Bucket
	Limit      uint64
	Remaining  uint64
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Store persists the policy singleton and the client buckets.
//
// Implementations must apply UpdatePolicy and UpdateBucket as atomic
// read-modify-write cycles on a single record. The mutate function reports
// whether it changed the record; a changed record is written even when the
// function also returns an error, and the error is then returned unchanged.
type Store interface {
	CreatePolicy(ctx context.Context, p Policy) error
	LoadPolicy(ctx context.Context) (Policy, error)
	UpdatePolicy(ctx context.Context, fn func(p *Policy) (bool, error)) (Policy, error)

	CreateBucket(ctx context.Context, b Bucket) error
	LoadBucket(ctx context.Context, owner Identity) (Bucket, error)
	UpdateBucket(ctx context.Context, owner Identity, fn func(b *Bucket) (bool, error)) (Bucket, error)

	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*SQLStore)(nil)
)
