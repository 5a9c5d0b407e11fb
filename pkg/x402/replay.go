// Package x402 - Replay protection
// A payment authorization is single use. The guard records the transaction
// hash and payment ID of every accepted payment; a second authorization
// reusing either key is rejected. Consume is the commit point and must be
// atomic so that concurrent requests with the same proof admit exactly one.
package x402

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Replay key prefixes. Both keys of an authorization are consumed together.
const (
	replayTxPrefix        = "tx:"
	replayPaymentIDPrefix = "pid:"
)

// TransactionKey returns the replay ledger key for a transaction hash.
func TransactionKey(txHash string) string {
	return replayTxPrefix + txHash
}

// PaymentIDKey returns the replay ledger key for a payment ID.
func PaymentIDKey(paymentID string) string {
	return replayPaymentIDPrefix + paymentID
}

// ReplayStore records consumed payment proofs.
type ReplayStore interface {
	// Seen reports whether any of the keys has already been consumed.
	Seen(ctx context.Context, keys ...string) (bool, error)

	// Consume atomically records all keys. It returns false when any key
	// was already present, in which case none of the keys is newly
	// recorded. Under concurrent calls with overlapping keys exactly one
	// caller observes true.
	Consume(ctx context.Context, keys ...string) (bool, error)
}

// InMemoryReplayStore is a mutex-guarded in-process ReplayStore. Suitable
// for a single server process; multi-instance deployments should use
// GormReplayStore so all instances share one ledger.
type InMemoryReplayStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

// NewInMemoryReplayStore creates an empty in-memory replay store.
func NewInMemoryReplayStore() *InMemoryReplayStore {
	return &InMemoryReplayStore{used: make(map[string]time.Time)}
}

// Seen reports whether any key has been consumed.
func (s *InMemoryReplayStore) Seen(_ context.Context, keys ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if _, ok := s.used[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Consume records all keys if none is present yet.
func (s *InMemoryReplayStore) Consume(_ context.Context, keys ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if _, ok := s.used[k]; ok {
			return false, nil
		}
	}
	now := time.Now()
	for _, k := range keys {
		s.used[k] = now
	}
	return true, nil
}

// PurgeOlderThan drops entries consumed more than age ago and returns how
// many were dropped. Entries only need to outlive the challenge TTL plus
// the ledger's own replay horizon, so periodic purging keeps the map
// bounded.
func (s *InMemoryReplayStore) PurgeOlderThan(_ context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var dropped int64
	for k, at := range s.used {
		if at.Before(cutoff) {
			delete(s.used, k)
			dropped++
		}
	}
	return dropped, nil
}

// ReplayPurger is implemented by replay stores whose consumed keys can be
// discarded once they outlive the replay horizon.
type ReplayPurger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// PurgeReplayStore purges store every interval until ctx is cancelled.
// It blocks; run it in a goroutine. age must exceed the challenge TTL
// plus the ledger's replay horizon, or a purged transaction hash could
// be presented again.
func PurgeReplayStore(ctx context.Context, store ReplayPurger, interval, age time.Duration, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dropped, err := store.PurgeOlderThan(ctx, age)
			if err != nil {
				log.WithError(err).Warn("replay store purge failed")
				continue
			}
			if dropped > 0 {
				log.WithFields(logrus.Fields{"dropped": dropped}).Debug("purged consumed payment keys")
			}
		}
	}
}
