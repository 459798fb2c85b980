package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ledgerPrefix = "stripe:processed:"

	StateProcessing = "processing"
	StateCompleted  = "completed"
)

// Ledger records which checkout sessions have been turned into tickets.
type Ledger struct {
	*Redis
	ttl time.Duration
}

func NewLedger(r *Redis, ttl time.Duration) *Ledger {
	return &Ledger{Redis: r, ttl: ttl}
}

func LedgerKey(sessionID string) string {
	return ledgerPrefix + sessionID
}

// Claim marks the session as processing. It returns false when the session was already
// claimed by an earlier delivery.
func (l *Ledger) Claim(ctx context.Context, sessionID string) (bool, error) {
	return l.Client.SetNX(ctx, LedgerKey(sessionID), StateProcessing, l.ttl).Result()
}

// Complete flips the marker to completed without touching its expiry.
func (l *Ledger) Complete(ctx context.Context, sessionID string) error {
	return l.Client.Set(ctx, LedgerKey(sessionID), StateCompleted, redis.KeepTTL).Err()
}

// Release drops the claim so the provider's retry can process the session again.
func (l *Ledger) Release(ctx context.Context, sessionID string) error {
	return l.Client.Del(ctx, LedgerKey(sessionID)).Err()
}

// State returns the marker for a session, or "" if none exists.
func (l *Ledger) State(ctx context.Context, sessionID string) (string, error) {
	val, err := l.Client.Get(ctx, LedgerKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
