package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errContention = errors.New("too much contention on key")

// RedisStore keeps records in Redis as fixed-size binary strings. Updates run
// as optimistic WATCH/MULTI transactions, so concurrent writers on one key are
// serialized across every instance sharing the Redis server.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	timeout    time.Duration
	maxRetries int
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	r := &RedisStore{
		client:     client,
		prefix:     "limiter:",
		timeout:    5 * time.Second,
		maxRetries: 16,
	}
	for _, opt := range opts {
		opt(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RedisStore) policyKey() string {
	return r.prefix + "policy"
}

func (r *RedisStore) bucketKey(owner Identity) string {
	return r.prefix + "bucket:" + owner.String()
}

func (r *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RedisStore) create(ctx context.Context, key string, data []byte, exists error) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ok, err := r.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return exists
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, key string, missing error) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, missing
	}
	return data, err
}

// update runs apply under WATCH on key and retries when another client wrote
// the key between the read and the EXEC.
func (r *RedisStore) update(ctx context.Context, key string, missing error, apply func(data []byte) ([]byte, bool, error)) ([]byte, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		var (
			current []byte
			applied error
		)
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return missing
			}
			if err != nil {
				return err
			}

			next, changed, applyErr := apply(data)
			applied = applyErr
			current = data
			if !changed {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			if err == nil {
				current = next
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return current, applied
	}
	return nil, fmt.Errorf("%s: %w", key, errContention)
}

func (r *RedisStore) CreatePolicy(ctx context.Context, p Policy) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return r.create(ctx, r.policyKey(), data, ErrAlreadyInitialized)
}

func (r *RedisStore) LoadPolicy(ctx context.Context) (Policy, error) {
	var p Policy
	data, err := r.load(ctx, r.policyKey(), ErrNotInitialized)
	if err != nil {
		return p, err
	}
	return p, p.UnmarshalBinary(data)
}

func (r *RedisStore) UpdatePolicy(ctx context.Context, fn func(p *Policy) (bool, error)) (Policy, error) {
	data, err := r.update(ctx, r.policyKey(), ErrNotInitialized, func(data []byte) ([]byte, bool, error) {
		var p Policy
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, false, err
		}
		changed, err := fn(&p)
		if !changed {
			return nil, false, err
		}
		next, marshalErr := p.MarshalBinary()
		if marshalErr != nil {
			return nil, false, marshalErr
		}
		return next, true, err
	})
	if data == nil {
		return Policy{}, err
	}

	var p Policy
	if decodeErr := p.UnmarshalBinary(data); decodeErr != nil {
		return Policy{}, decodeErr
	}
	return p, err
}

func (r *RedisStore) CreateBucket(ctx context.Context, b Bucket) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	return r.create(ctx, r.bucketKey(b.Owner), data, ErrAlreadyRegistered)
}

func (r *RedisStore) LoadBucket(ctx context.Context, owner Identity) (Bucket, error) {
	var b Bucket
	data, err := r.load(ctx, r.bucketKey(owner), ErrNotRegistered)
	if err != nil {
		return b, err
	}
	return b, b.UnmarshalBinary(data)
}

func (r *RedisStore) UpdateBucket(ctx context.Context, owner Identity, fn func(b *Bucket) (bool, error)) (Bucket, error) {
	data, err := r.update(ctx, r.bucketKey(owner), ErrNotRegistered, func(data []byte) ([]byte, bool, error) {
		var b Bucket
		if err := b.UnmarshalBinary(data); err != nil {
			return nil, false, err
		}
		changed, err := fn(&b)
		if !changed {
			return nil, false, err
		}
		next, marshalErr := b.MarshalBinary()
		if marshalErr != nil {
			return nil, false, marshalErr
		}
		return next, true, err
	})
	if data == nil {
		return Bucket{}, err
	}

	var b Bucket
	if decodeErr := b.UnmarshalBinary(data); decodeErr != nil {
		return Bucket{}, decodeErr
	}
	return b, err
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
