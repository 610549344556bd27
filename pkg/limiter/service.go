package limiter

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Service applies the limiter transitions against a Store. Callers are assumed
// to be authenticated already; Service only compares identities.
//
// It is safe for concurrent use. Per-record serialization is delegated to the
// Store.
type Service struct {
	store    Store
	now      func() time.Time
	recorder MetricsRecorder
	log      *slog.Logger
}

// NewService constructs a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      time.Now,
		recorder: &NoOpMetricsRecorder{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the policy with admin as its administrator.
func (s *Service) Initialize(ctx context.Context, admin Identity, cfg Config) (Policy, error) {
	start := time.Now()
	p, err := s.initialize(ctx, admin, cfg)
	s.record("initialize", start, err)
	return p, opError("initialize", admin, err)
}

func (s *Service) initialize(ctx context.Context, admin Identity, cfg Config) (Policy, error) {
	p, err := NewPolicy(admin, cfg)
	if err != nil {
		return Policy{}, err
	}
	if err := s.store.CreatePolicy(ctx, p); err != nil {
		return Policy{}, err
	}
	s.log.Info("rate limiter initialized",
		"admin", admin,
		"max_requests", cfg.MaxRequests,
		"window_seconds", cfg.WindowSeconds,
		"burst_limit", cfg.BurstLimit)
	return p, nil
}

// Register creates the bucket for client.
func (s *Service) Register(ctx context.Context, client Identity) (Bucket, error) {
	start := time.Now()
	b, err := s.register(ctx, client)
	s.record("register", start, err)
	return b, opError("register", client, err)
}

func (s *Service) register(ctx context.Context, client Identity) (Bucket, error) {
	p, err := s.store.LoadPolicy(ctx)
	if err != nil {
		return Bucket{}, err
	}
	b, err := NewBucket(p, client, s.now().Unix())
	if err != nil {
		return Bucket{}, err
	}
	if err := s.store.CreateBucket(ctx, b); err != nil {
		return Bucket{}, err
	}
	s.log.Debug("client registered", "client", client)
	return b, nil
}

// Consume admits one request from caller against owner's bucket. On a quota
// rejection the returned Decision still describes the bucket.
func (s *Service) Consume(ctx context.Context, caller, owner Identity) (Decision, error) {
	start := time.Now()
	d, err := s.consume(ctx, caller, owner)
	s.record("consume", start, err)
	return d, opError("consume", owner, err)
}

func (s *Service) consume(ctx context.Context, caller, owner Identity) (Decision, error) {
	p, err := s.store.LoadPolicy(ctx)
	if err != nil {
		return Decision{}, err
	}

	now := s.now().Unix()
	var rolled bool
	b, err := s.store.UpdateBucket(ctx, owner, func(b *Bucket) (bool, error) {
		var err error
		rolled, err = b.Consume(p, caller, now)
		return rolled || err == nil, err
	})
	if rolled && (err == nil || IsQuotaError(err)) {
		s.log.Debug("window reset", "client", owner, "window_start", now)
	}
	if err != nil {
		if IsQuotaError(err) {
			return decide(p, b, now, false), err
		}
		return Decision{}, err
	}

	s.log.Debug("request consumed",
		"client", owner,
		"used", b.RequestCount,
		"max", p.MaxRequests,
		"window_ends_in", b.WindowEnd(p)-now)
	return decide(p, b, now, true), nil
}

// Largest wait in seconds that still fits in a time.Duration.
const maxRetryAfterSeconds = int64(math.MaxInt64 / time.Second)

func decide(p Policy, b Bucket, now int64, allow bool) Decision {
	d := Decision{
		Allow:     allow,
		Bucket:    b,
		Limit:     p.MaxRequests,
		ResetTime: time.Unix(b.WindowEnd(p), 0),
	}
	if b.RequestCount < p.MaxRequests {
		d.Remaining = p.MaxRequests - b.RequestCount
	}
	if !allow {
		if wait := b.WindowEnd(p) - now; wait > maxRetryAfterSeconds {
			d.RetryAfter = time.Duration(math.MaxInt64)
		} else if wait > 0 {
			d.RetryAfter = time.Duration(wait) * time.Second
		}
	}
	return d
}

// ResetClient clears target's window and blocked flag.
func (s *Service) ResetClient(ctx context.Context, caller, target Identity) (Bucket, error) {
	start := time.Now()
	b, err := s.resetClient(ctx, caller, target)
	s.record("reset_client", start, err)
	return b, opError("reset_client", target, err)
}

func (s *Service) resetClient(ctx context.Context, caller, target Identity) (Bucket, error) {
	p, err := s.authorizedPolicy(ctx, caller)
	if err != nil {
		return Bucket{}, err
	}
	now := s.now().Unix()
	b, err := s.store.UpdateBucket(ctx, target, func(b *Bucket) (bool, error) {
		err := b.Reset(p, caller, now)
		return err == nil, err
	})
	if err != nil {
		return Bucket{}, err
	}
	s.log.Info("client bucket reset by admin", "client", target)
	return b, nil
}

// BlockClient rejects all further consumption by target until a reset.
func (s *Service) BlockClient(ctx context.Context, caller, target Identity) (Bucket, error) {
	start := time.Now()
	b, err := s.blockClient(ctx, caller, target)
	s.record("block_client", start, err)
	return b, opError("block_client", target, err)
}

func (s *Service) blockClient(ctx context.Context, caller, target Identity) (Bucket, error) {
	p, err := s.authorizedPolicy(ctx, caller)
	if err != nil {
		return Bucket{}, err
	}
	b, err := s.store.UpdateBucket(ctx, target, func(b *Bucket) (bool, error) {
		err := b.Block(p, caller)
		return err == nil, err
	})
	if err != nil {
		return Bucket{}, err
	}
	s.log.Info("client blocked", "client", target)
	return b, nil
}

// UpdateConfig replaces the policy limits.
func (s *Service) UpdateConfig(ctx context.Context, caller Identity, cfg Config) (Policy, error) {
	start := time.Now()
	p, err := s.updateConfig(ctx, caller, cfg)
	s.record("update_config", start, err)
	return p, opError("update_config", caller, err)
}

func (s *Service) updateConfig(ctx context.Context, caller Identity, cfg Config) (Policy, error) {
	p, err := s.store.UpdatePolicy(ctx, func(p *Policy) (bool, error) {
		err := p.ApplyConfig(caller, cfg)
		return err == nil, err
	})
	if err != nil {
		return Policy{}, err
	}
	s.log.Info("config updated",
		"max_requests", p.MaxRequests,
		"window_seconds", p.WindowSeconds,
		"burst_limit", p.BurstLimit)
	return p, nil
}

// TogglePause flips the global pause flag.
func (s *Service) TogglePause(ctx context.Context, caller Identity) (Policy, error) {
	start := time.Now()
	p, err := s.togglePause(ctx, caller)
	s.record("toggle_pause", start, err)
	return p, opError("toggle_pause", caller, err)
}

func (s *Service) togglePause(ctx context.Context, caller Identity) (Policy, error) {
	p, err := s.store.UpdatePolicy(ctx, func(p *Policy) (bool, error) {
		err := p.TogglePause(caller)
		return err == nil, err
	})
	if err != nil {
		return Policy{}, err
	}
	s.log.Info("program paused", "paused", p.Paused)
	return p, nil
}

// Policy returns the current policy.
func (s *Service) Policy(ctx context.Context) (Policy, error) {
	p, err := s.store.LoadPolicy(ctx)
	return p, opError("policy", Identity{}, err)
}

// Bucket returns the bucket registered for owner.
func (s *Service) Bucket(ctx context.Context, owner Identity) (Bucket, error) {
	b, err := s.store.LoadBucket(ctx, owner)
	return b, opError("bucket", owner, err)
}

func (s *Service) authorizedPolicy(ctx context.Context, caller Identity) (Policy, error) {
	p, err := s.store.LoadPolicy(ctx)
	if err != nil {
		return Policy{}, err
	}
	if err := p.Authorize(caller); err != nil {
		return Policy{}, err
	}
	return p, nil
}
