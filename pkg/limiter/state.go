package limiter

import "math"

// The functions in this file are the pure state transitions. They never touch a
// Store; the Service runs them inside the store's atomic update callbacks.

// NewPolicy builds the initial policy for admin.
func NewPolicy(admin Identity, cfg Config) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{Admin: admin, Config: cfg, Paused: false}, nil
}

// Authorize reports ErrUnauthorized unless caller is the policy administrator.
func (p *Policy) Authorize(caller Identity) error {
	if caller != p.Admin {
		return ErrUnauthorized
	}
	return nil
}

// ApplyConfig replaces the limits. On error p is left untouched.
func (p *Policy) ApplyConfig(caller Identity, cfg Config) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.Config = cfg
	return nil
}

// TogglePause flips the pause flag.
func (p *Policy) TogglePause(caller Identity) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	p.Paused = !p.Paused
	return nil
}

// NewBucket builds the bucket for a newly registered client.
func NewBucket(p Policy, owner Identity, now int64) (Bucket, error) {
	if p.Paused {
		return Bucket{}, ErrProgramPaused
	}
	return Bucket{
		Owner:         owner,
		RequestCount:  0,
		WindowStart:   now,
		TotalRequests: 0,
		Blocked:       false,
	}, nil
}

// WindowExpired reports whether the window that started at b.WindowStart has
// elapsed at now.
func (b *Bucket) WindowExpired(p Policy, now int64) bool {
	// now >= WindowStart + WindowSeconds, without overflowing on huge windows.
	return now-b.WindowStart >= p.WindowSeconds
}

// Consume admits one request for caller against p.
//
// rolled reports whether the window was reset. A reset is part of the
// transition even when the request is then rejected, so callers must persist b
// whenever rolled is true.
func (b *Bucket) Consume(p Policy, caller Identity, now int64) (rolled bool, err error) {
	if caller != b.Owner {
		return false, ErrUnauthorized
	}
	if p.Paused {
		return false, ErrProgramPaused
	}
	if b.Blocked {
		return false, ErrClientBlocked
	}

	if b.WindowExpired(p, now) {
		b.RequestCount = 0
		b.WindowStart = now
		rolled = true
	}

	if b.RequestCount >= p.MaxRequests {
		return rolled, ErrRateLimitExceeded
	}
	// Shadowed by the sustained check while BurstLimit >= MaxRequests holds.
	if b.RequestCount >= p.BurstLimit {
		return rolled, ErrBurstLimitExceeded
	}

	b.RequestCount++
	b.TotalRequests++
	return rolled, nil
}

// Reset clears the window and the blocked flag.
func (b *Bucket) Reset(p Policy, caller Identity, now int64) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	b.RequestCount = 0
	b.WindowStart = now
	b.Blocked = false
	return nil
}

// Block rejects all further consumption until the next Reset.
func (b *Bucket) Block(p Policy, caller Identity) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	b.Blocked = true
	return nil
}

// WindowEnd is the unix second at which the current window closes, saturating
// at math.MaxInt64.
func (b *Bucket) WindowEnd(p Policy) int64 {
	if b.WindowStart > math.MaxInt64-p.WindowSeconds {
		return math.MaxInt64
	}
	return b.WindowStart + p.WindowSeconds
}
