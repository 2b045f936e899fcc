// Package redisstore keeps revoked action token ids in Redis so every
// instance of the service rejects them until they would have expired anyway.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/courier/svc/notify"
)

// RevocationStore implements notify.RevocationStore on a Redis client.
type RevocationStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option configures a RevocationStore.
type Option func(*RevocationStore)

// WithKeyPrefix namespaces keys, e.g. "courier:". Defaults to none.
func WithKeyPrefix(prefix string) Option {
	return func(s *RevocationStore) {
		s.prefix = prefix
	}
}

// WithClock overrides the clock used to compute key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *RevocationStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRevocationStore creates a store on an initialized client.
func NewRevocationStore(client redis.UniversalClient, opts ...Option) *RevocationStore {
	s := &RevocationStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RevocationStore) key(tokenID string) string {
	return s.prefix + "revoked_token:" + tokenID
}

// Revoke marks tokenID revoked until the given time. Tokens already past
// until are ignored since verification rejects them as expired.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}

var _ notify.RevocationStore = (*RevocationStore)(nil)
