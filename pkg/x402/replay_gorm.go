// Package x402 - Database-backed replay protection
// GormReplayStore keeps the consumed-proof ledger in a relational table so
// several server instances can share it. Atomicity comes from the primary
// key: an insert with ON CONFLICT DO NOTHING that affects fewer rows than
// it attempted means another request got there first.
package x402

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConsumedKey is a row in the replay ledger table.
type ConsumedKey struct {
	Key        string    `gorm:"primaryKey;size:128"`
	ConsumedAt time.Time `gorm:"index"`
}

// TableName implements the gorm table naming override.
func (ConsumedKey) TableName() string {
	return "x402_consumed_keys"
}

// GormReplayStore is a ReplayStore backed by a gorm database.
type GormReplayStore struct {
	db *gorm.DB
}

// NewGormReplayStore wraps db as a replay store. Callers run migrations
// themselves, typically db.AutoMigrate(&x402.ConsumedKey{}).
func NewGormReplayStore(db *gorm.DB) *GormReplayStore {
	return &GormReplayStore{db: db}
}

var errKeyConflict = errors.New("replay key conflict")

// Seen reports whether any key is already in the ledger.
func (s *GormReplayStore) Seen(ctx context.Context, keys ...string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ConsumedKey{}).Where("`key` IN ?", keys).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Consume inserts all keys in one statement. If any key already exists the
// conflict is swallowed by the database, the affected-row count comes up
// short and the whole insert is rolled back.
func (s *GormReplayStore) Consume(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}

	now := time.Now()
	rows := make([]ConsumedKey, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, ConsumedKey{Key: k, ConsumedAt: now})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(rows)) {
			return errKeyConflict
		}
		return nil
	})
	if errors.Is(err, errKeyConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurgeOlderThan deletes ledger rows consumed more than age ago and
// returns how many were deleted.
func (s *GormReplayStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).Where("consumed_at < ?", time.Now().Add(-age)).Delete(&ConsumedKey{})
	return res.RowsAffected, res.Error
}
