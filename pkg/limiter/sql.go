package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const policySingletonID = "global"

// policyModel is the GORM model for the rate_limit_policies table.
type policyModel struct {
	ID            string    `gorm:"column:id;type:varchar(16);primaryKey"`
	Admin         string    `gorm:"column:admin;type:char(64);not null"`
	MaxRequests   int64     `gorm:"column:max_requests;not null"`
	WindowSeconds int64     `gorm:"column:window_seconds;not null"`
	BurstLimit    int64     `gorm:"column:burst_limit;not null"`
	Paused        bool      `gorm:"column:paused;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (policyModel) TableName() string {
	return "rate_limit_policies"
}

// bucketModel is the GORM model for the client_buckets table.
type bucketModel struct {
	Owner         string    `gorm:"column:owner;type:char(64);primaryKey"`
	RequestCount  int64     `gorm:"column:request_count;not null"`
	WindowStart   int64     `gorm:"column:window_start;not null"`
	TotalRequests int64     `gorm:"column:total_requests;not null"`
	Blocked       bool      `gorm:"column:blocked;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (bucketModel) TableName() string {
	return "client_buckets"
}

// Counters are stored as signed BIGINT; values above math.MaxInt64 are kept
// by bit-casting and come back unchanged.
func toPolicyModel(p Policy) policyModel {
	return policyModel{
		ID:            policySingletonID,
		Admin:         p.Admin.String(),
		MaxRequests:   int64(p.MaxRequests),
		WindowSeconds: p.WindowSeconds,
		BurstLimit:    int64(p.BurstLimit),
		Paused:        p.Paused,
	}
}

func (m policyModel) toPolicy() (Policy, error) {
	admin, err := ParseIdentity(m.Admin)
	if err != nil {
		return Policy{}, fmt.Errorf("stored policy: %w", err)
	}
	return Policy{
		Admin: admin,
		Config: Config{
			MaxRequests:   uint64(m.MaxRequests),
			WindowSeconds: m.WindowSeconds,
			BurstLimit:    uint64(m.BurstLimit),
		},
		Paused: m.Paused,
	}, nil
}

func toBucketModel(b Bucket) bucketModel {
	return bucketModel{
		Owner:         b.Owner.String(),
		RequestCount:  int64(b.RequestCount),
		WindowStart:   b.WindowStart,
		TotalRequests: int64(b.TotalRequests),
		Blocked:       b.Blocked,
	}
}

func (m bucketModel) toBucket() (Bucket, error) {
	owner, err := ParseIdentity(m.Owner)
	if err != nil {
		return Bucket{}, fmt.Errorf("stored bucket: %w", err)
	}
	return Bucket{
		Owner:         owner,
		RequestCount:  uint64(m.RequestCount),
		WindowStart:   m.WindowStart,
		TotalRequests: uint64(m.TotalRequests),
		Blocked:       m.Blocked,
	}, nil
}

// SQLStore is a GORM-backed Store. Updates lock the row with SELECT ... FOR
// UPDATE inside a transaction. SQLite ignores the locking clause, so its
// connection must begin transactions with the write lock held
// (_txlock=immediate, as internal/database sets up) or be limited to a single
// connection.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns a store over db.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.AutoMigrate(&policyModel{}, &bucketModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate limiter tables: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) CreatePolicy(ctx context.Context, p Policy) error {
	m := toPolicyModel(p)
	return s.create(ctx, &m, &policyModel{}, "id = ?", m.ID, ErrAlreadyInitialized)
}

func (s *SQLStore) CreateBucket(ctx context.Context, b Bucket) error {
	m := toBucketModel(b)
	return s.create(ctx, &m, &bucketModel{}, "owner = ?", m.Owner, ErrAlreadyRegistered)
}

func (s *SQLStore) create(ctx context.Context, record, probe any, where string, key string, exists error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(probe).Where(where, key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return exists
		}
		return tx.Create(record).Error
	})
	if err != nil && isDuplicateError(err) {
		return exists
	}
	return err
}

func (s *SQLStore) LoadPolicy(ctx context.Context) (Policy, error) {
	var m policyModel
	err := s.db.WithContext(ctx).Where("id = ?", policySingletonID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Policy{}, ErrNotInitialized
	}
	if err != nil {
		return Policy{}, err
	}
	return m.toPolicy()
}

func (s *SQLStore) UpdatePolicy(ctx context.Context, fn func(p *Policy) (bool, error)) (Policy, error) {
	var (
		result  Policy
		applied error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m policyModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", policySingletonID).
			Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotInitialized
		}
		if err != nil {
			return err
		}

		current, err := m.toPolicy()
		if err != nil {
			return err
		}
		next := current
		changed, applyErr := fn(&next)
		applied = applyErr
		result = current
		if !changed {
			return nil
		}

		updated := toPolicyModel(next)
		updated.CreatedAt = m.CreatedAt
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return Policy{}, err
	}
	return result, applied
}

func (s *SQLStore) LoadBucket(ctx context.Context, owner Identity) (Bucket, error) {
	var m bucketModel
	err := s.db.WithContext(ctx).Where("owner = ?", owner.String()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Bucket{}, ErrNotRegistered
	}
	if err != nil {
		return Bucket{}, err
	}
	return m.toBucket()
}

func (s *SQLStore) UpdateBucket(ctx context.Context, owner Identity, fn func(b *Bucket) (bool, error)) (Bucket, error) {
	var (
		result  Bucket
		applied error
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m bucketModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner = ?", owner.String()).
			Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotRegistered
		}
		if err != nil {
			return err
		}

		current, err := m.toBucket()
		if err != nil {
			return err
		}
		next := current
		changed, applyErr := fn(&next)
		applied = applyErr
		result = current
		if !changed {
			return nil
		}

		updated := toBucketModel(next)
		updated.CreatedAt = m.CreatedAt
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return Bucket{}, err
	}
	return result, applied
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// isDuplicateError checks if the error is a database duplicate key error.
func isDuplicateError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
