package limiter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(b byte) Identity {
	var id Identity
	for i := range id {
		id[i] = b
	}
	return id
}

var (
	admin  = testIdentity(0xAA)
	client = testIdentity(0x01)
	other  = testIdentity(0x02)
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		valid bool
	}{
		{"equal burst", Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 5}, true},
		{"larger burst", Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 7}, true},
		{"one per second", Config{MaxRequests: 1, WindowSeconds: 1, BurstLimit: 1}, true},
		{"zero max", Config{MaxRequests: 0, WindowSeconds: 60, BurstLimit: 5}, false},
		{"zero window", Config{MaxRequests: 5, WindowSeconds: 0, BurstLimit: 5}, false},
		{"negative window", Config{MaxRequests: 5, WindowSeconds: -1, BurstLimit: 5}, false},
		{"burst below max", Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 4}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewPolicy(t *testing.T) {
	cfg := Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 7}

	p, err := NewPolicy(admin, cfg)
	require.NoError(t, err)
	assert.Equal(t, Policy{Admin: admin, Config: cfg, Paused: false}, p)

	_, err = NewPolicy(admin, Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPolicy_ApplyConfig(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 5})
	require.NoError(t, err)
	before := p

	err = p.ApplyConfig(other, Config{MaxRequests: 10, WindowSeconds: 30, BurstLimit: 10})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, before, p)

	err = p.ApplyConfig(admin, Config{MaxRequests: 10, WindowSeconds: 0, BurstLimit: 10})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, before, p)

	p.Paused = true
	require.NoError(t, p.ApplyConfig(admin, Config{MaxRequests: 10, WindowSeconds: 30, BurstLimit: 12}))
	assert.Equal(t, Config{MaxRequests: 10, WindowSeconds: 30, BurstLimit: 12}, p.Config)
	assert.True(t, p.Paused, "pause flag is not part of the config")
	assert.Equal(t, admin, p.Admin)
}

func TestPolicy_TogglePause(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 1, WindowSeconds: 1, BurstLimit: 1})
	require.NoError(t, err)

	assert.ErrorIs(t, p.TogglePause(client), ErrUnauthorized)
	assert.False(t, p.Paused)

	require.NoError(t, p.TogglePause(admin))
	assert.True(t, p.Paused)
	require.NoError(t, p.TogglePause(admin))
	assert.False(t, p.Paused)
}

func TestNewBucket(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 5})
	require.NoError(t, err)

	b, err := NewBucket(p, client, 100)
	require.NoError(t, err)
	assert.Equal(t, Bucket{Owner: client, WindowStart: 100}, b)

	p.Paused = true
	_, err = NewBucket(p, client, 100)
	assert.ErrorIs(t, err, ErrProgramPaused)
}

func TestBucket_Consume_SustainedLimit(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 5})
	require.NoError(t, err)
	b, err := NewBucket(p, client, 0)
	require.NoError(t, err)

	for now := int64(0); now < 5; now++ {
		rolled, err := b.Consume(p, client, now)
		require.NoError(t, err, "request at t=%d", now)
		assert.False(t, rolled)
		assert.Equal(t, uint64(now+1), b.RequestCount)
		assert.Equal(t, uint64(now+1), b.TotalRequests)
	}

	before := b
	_, err = b.Consume(p, client, 5)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, before, b, "rejection must not change the bucket")

	rolled, err := b.Consume(p, client, 61)
	require.NoError(t, err)
	assert.True(t, rolled)
	assert.Equal(t, uint64(1), b.RequestCount)
	assert.Equal(t, int64(61), b.WindowStart)
	assert.Equal(t, uint64(6), b.TotalRequests)
}

func TestBucket_Consume_LargerBurstReportsRateLimit(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 7})
	require.NoError(t, err)
	b, err := NewBucket(p, client, 0)
	require.NoError(t, err)

	for now := int64(0); now < 5; now++ {
		_, err := b.Consume(p, client, now)
		require.NoError(t, err)
	}

	_, err = b.Consume(p, client, 30)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.NotErrorIs(t, err, ErrBurstLimitExceeded)
}

func TestBucket_Consume_BurstCheck(t *testing.T) {
	// Only reachable when the stored record breaks the sustained ordering,
	// e.g. a policy written by hand.
	p := Policy{Admin: admin, Config: Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 2}}
	b := Bucket{Owner: client, RequestCount: 2, WindowStart: 0}

	_, err := b.Consume(p, client, 1)
	assert.ErrorIs(t, err, ErrBurstLimitExceeded)
	assert.Equal(t, uint64(2), b.RequestCount)
}

func TestBucket_Consume_WindowBoundary(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 1, WindowSeconds: 10, BurstLimit: 1})
	require.NoError(t, err)
	b, err := NewBucket(p, client, 100)
	require.NoError(t, err)

	_, err = b.Consume(p, client, 100)
	require.NoError(t, err)

	_, err = b.Consume(p, client, 109)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	rolled, err := b.Consume(p, client, 110)
	require.NoError(t, err, "window closes at exactly start+window")
	assert.True(t, rolled)
	assert.Equal(t, int64(110), b.WindowStart)
}

func TestBucket_Consume_NoCreditAccumulates(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 2, WindowSeconds: 10, BurstLimit: 2})
	require.NoError(t, err)
	b, err := NewBucket(p, client, 0)
	require.NoError(t, err)

	// Ten idle windows.
	for i := 0; i < 2; i++ {
		_, err := b.Consume(p, client, 100)
		require.NoError(t, err)
	}
	_, err = b.Consume(p, client, 100)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestBucket_Consume_PreconditionOrder(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 5})
	require.NoError(t, err)
	p.Paused = true
	b := Bucket{Owner: client, RequestCount: 5, WindowStart: 0, Blocked: true}
	before := b

	_, err = b.Consume(p, other, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = b.Consume(p, client, 1)
	assert.ErrorIs(t, err, ErrProgramPaused)

	p.Paused = false
	_, err = b.Consume(p, client, 1)
	assert.ErrorIs(t, err, ErrClientBlocked)

	rolled, err := b.Consume(p, client, 1000)
	assert.ErrorIs(t, err, ErrClientBlocked, "blocked wins over an expired window")
	assert.False(t, rolled)
	assert.Equal(t, before, b)
}

func TestBucket_BlockAndReset(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 2, WindowSeconds: 60, BurstLimit: 2})
	require.NoError(t, err)
	b, err := NewBucket(p, client, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := b.Consume(p, client, 1)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, b.Block(p, client), ErrUnauthorized)
	assert.False(t, b.Blocked)

	require.NoError(t, b.Block(p, admin))
	_, err = b.Consume(p, client, 2)
	assert.ErrorIs(t, err, ErrClientBlocked)

	assert.ErrorIs(t, b.Reset(p, other, 3), ErrUnauthorized)
	assert.True(t, b.Blocked)

	require.NoError(t, b.Reset(p, admin, 3))
	assert.Equal(t, Bucket{Owner: client, RequestCount: 0, WindowStart: 3, TotalRequests: 2, Blocked: false}, b)

	_, err = b.Consume(p, client, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), b.TotalRequests)
}

func TestBucket_ResetWhilePaused(t *testing.T) {
	p, err := NewPolicy(admin, Config{MaxRequests: 2, WindowSeconds: 60, BurstLimit: 2})
	require.NoError(t, err)
	p.Paused = true
	b := Bucket{Owner: client, RequestCount: 2, WindowStart: 0, TotalRequests: 9, Blocked: true}

	require.NoError(t, b.Reset(p, admin, 10))
	assert.Equal(t, uint64(0), b.RequestCount)
	assert.False(t, b.Blocked)
	assert.Equal(t, uint64(9), b.TotalRequests)
}

func TestBucket_WindowEnd(t *testing.T) {
	p := Policy{Config: Config{MaxRequests: 1, WindowSeconds: 60, BurstLimit: 1}}
	b := Bucket{WindowStart: 100}
	assert.Equal(t, int64(160), b.WindowEnd(p))

	p.WindowSeconds = math.MaxInt64
	assert.Equal(t, int64(math.MaxInt64), b.WindowEnd(p))

	b.WindowStart = -5
	assert.Equal(t, int64(math.MaxInt64-5), b.WindowEnd(p))
}
