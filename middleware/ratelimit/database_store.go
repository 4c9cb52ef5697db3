package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateLimitCounter is one fixed-window counter shared by every instance.
type RateLimitCounter struct {
	CounterKey string    `gorm:"primaryKey;size:191"`
	Hits       int       `gorm:"not null;default:0"`
	ResetAt    time.Time `gorm:"index;not null"`
	UpdatedAt  time.Time
}

func (RateLimitCounter) TableName() string {
	return "rate_limit_counters"
}

type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) Get(ctx context.Context, key string) (int, time.Time, bool, error) {
	var counter RateLimitCounter
	err := s.db.WithContext(ctx).
		Where("counter_key = ? AND reset_at > ?", key, time.Now().UTC()).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return counter.Hits, counter.ResetAt, true, nil
}

// Increment bumps a live counter, or starts a new window when the counter is
// missing or expired.
func (s *DatabaseStore) Increment(ctx context.Context, key string, resetTime time.Time) (int, error) {
	now := time.Now().UTC()
	var hits int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&RateLimitCounter{}).
			Where("counter_key = ? AND reset_at > ?", key, now).
			Update("hits", gorm.Expr("hits + ?", 1))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 1 {
			var counter RateLimitCounter
			if err := tx.Where("counter_key = ?", key).First(&counter).Error; err != nil {
				return err
			}
			hits = counter.Hits
			return nil
		}

		counter := RateLimitCounter{CounterKey: key, Hits: 1, ResetAt: resetTime.UTC()}
		hits = 1
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "counter_key"}},
			DoUpdates: clause.Assignments(map[string]any{"hits": 1, "reset_at": counter.ResetAt}),
		}).Create(&counter).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return hits, nil
}

func (s *DatabaseStore) Reset(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("counter_key = ?", key).Delete(&RateLimitCounter{}).Error; err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}

// Cleanup removes expired counters.
func (s *DatabaseStore) Cleanup(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("reset_at <= ?", time.Now().UTC()).Delete(&RateLimitCounter{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean up rate limit counters: %w", res.Error)
	}
	return res.RowsAffected, nil
}
