package limiter

import (
	"context"
	"sync"
)

type entry struct {
	mu     sync.Mutex
	bucket Bucket
}

// MemoryStore is an in-process Store.
//
// It is safe for concurrent use by multiple goroutines, but its state is local
// to the process and is not shared across replicas. Use RedisStore or SQLStore
// when several instances must share one set of buckets.
type MemoryStore struct {
	policyMu sync.RWMutex
	policy   *Policy

	mu      sync.RWMutex
	buckets map[Identity]*entry
}

// NewMemoryStore constructs a MemoryStore with empty state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[Identity]*entry),
	}
}

func (m *MemoryStore) CreatePolicy(ctx context.Context, p Policy) error {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	if m.policy != nil {
		return ErrAlreadyInitialized
	}
	m.policy = &p
	return nil
}

func (m *MemoryStore) LoadPolicy(ctx context.Context) (Policy, error) {
	m.policyMu.RLock()
	defer m.policyMu.RUnlock()

	if m.policy == nil {
		return Policy{}, ErrNotInitialized
	}
	return *m.policy, nil
}

func (m *MemoryStore) UpdatePolicy(ctx context.Context, fn func(p *Policy) (bool, error)) (Policy, error) {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	if m.policy == nil {
		return Policy{}, ErrNotInitialized
	}
	next := *m.policy
	changed, err := fn(&next)
	if changed {
		*m.policy = next
	}
	return *m.policy, err
}

func (m *MemoryStore) CreateBucket(ctx context.Context, b Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.buckets[b.Owner]; exists {
		return ErrAlreadyRegistered
	}
	m.buckets[b.Owner] = &entry{bucket: b}
	return nil
}

func (m *MemoryStore) lookup(owner Identity) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, exists := m.buckets[owner]
	if !exists {
		return nil, ErrNotRegistered
	}
	return e, nil
}

func (m *MemoryStore) LoadBucket(ctx context.Context, owner Identity) (Bucket, error) {
	e, err := m.lookup(owner)
	if err != nil {
		return Bucket{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bucket, nil
}

func (m *MemoryStore) UpdateBucket(ctx context.Context, owner Identity, fn func(b *Bucket) (bool, error)) (Bucket, error) {
	e, err := m.lookup(owner)
	if err != nil {
		return Bucket{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.bucket
	changed, err := fn(&next)
	if changed {
		e.bucket = next
	}
	return e.bucket, err
}

func (m *MemoryStore) Close() error {
	return nil
}
