package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionPrefix = "login:"

// SessionStore keeps operator login tokens. The stored value is a fingerprint of the
// secret that was valid at login time.
type SessionStore struct {
	*Redis
	ttl time.Duration
}

func NewSessionStore(r *Redis, ttl time.Duration) *SessionStore {
	return &SessionStore{Redis: r, ttl: ttl}
}

func SessionKey(token string) string {
	return sessionPrefix + token
}

func (s *SessionStore) Put(ctx context.Context, token, fingerprint string) error {
	return s.Client.Set(ctx, SessionKey(token), fingerprint, s.ttl).Err()
}

// Get returns the fingerprint for token. ok is false when the token is unknown or expired.
func (s *SessionStore) Get(ctx context.Context, token string) (fingerprint string, ok bool, err error) {
	val, err := s.Client.Get(ctx, SessionKey(token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	return s.Client.Del(ctx, SessionKey(token)).Err()
}
