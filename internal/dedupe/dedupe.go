// Package dedupe provides an optional, cross-instance idempotency check for
// memoryCommit: when multiple orchestrator processes share a session (e.g.
// behind a load balancer without sticky sessions), the in-process stream's
// Contains check alone cannot catch a duplicate submitted to a different
// instance. This is additive to that in-memory check, never a replacement.
package dedupe

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a committed message ID is remembered.
const DefaultTTL = 24 * time.Hour

// Store records which message IDs have already been committed for a
// session. A nil *Store is valid and treats every ID as unseen, matching
// the nil-receiver-safe pattern used for other optional backends.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New returns a Store backed by Redis at addr, or (nil, nil) if addr is
// empty, letting callers skip wiring an optional dependency without an
// if-chain at every call site.
func New(addr string, db int) (*Store, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Store{client: client, ttl: DefaultTTL}, nil
}

func key(user, session, messageID string) string {
	return "memoryd:commit:" + user + ":" + session + ":" + messageID
}

// SeenOrMark atomically checks whether messageID has already been committed
// for (user, session) and marks it seen if not. It returns true if this is
// the first time the ID has been observed.
func (s *Store) SeenOrMark(ctx context.Context, user, session, messageID string) (firstSeen bool, err error) {
	if s == nil || s.client == nil {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, key(user, session, messageID), "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Close closes the underlying client, tolerating a nil receiver.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
