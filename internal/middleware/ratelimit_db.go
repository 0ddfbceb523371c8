package middleware

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cooktodor/notifier/internal/models"
)

// DatabaseRateStore keeps rate counters in the primary database so every
// instance enforces the same limit.
type DatabaseRateStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseRateStore constructs a database-backed RateStore.
func NewDatabaseRateStore(db *gorm.DB) (*DatabaseRateStore, error) {
	if db == nil {
		return nil, errors.New("rate store: database handle is required")
	}
	return &DatabaseRateStore{db: db, clock: time.Now}, nil
}

// Increment bumps the counter for key inside a transaction holding a row lock.
func (s *DatabaseRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock().UTC()

	var counter models.RateCounter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&counter, "bucket = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.RateCounter{Bucket: key, Count: 1, WindowEnd: now.Add(window)}
			return tx.Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if now.After(counter.WindowEnd) {
			counter.Count = 0
			counter.WindowEnd = now.Add(window)
		}
		counter.Count++
		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return counter.Count, counter.WindowEnd.Sub(now), nil
}

// PurgeExpired deletes counters whose window ended before cutoff.
func (s *DatabaseRateStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("window_end < ?", cutoff.UTC()).
		Delete(&models.RateCounter{})
	return result.RowsAffected, result.Error
}
