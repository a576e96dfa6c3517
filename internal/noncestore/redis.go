package noncestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the nonce set with Redis SETNX-with-TTL, giving every
// relay pod in a multi-instance deployment the same replay-protection view.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore wraps an existing go-redis client. keyPrefix namespaces keys
// (e.g. "relay:nonce:") so the nonce set doesn't collide with other uses of
// the same Redis instance.
func NewRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "relay:nonce:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Claim atomically reserves the (eventID, nonce) pair via SET NX EX, the
// Redis primitive for "insert if absent with TTL".
func (s *RedisStore) Claim(eventID, nonce string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := s.keyPrefix + eventID + ":" + nonce
	ok, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		// Fail closed on transport errors would make the relay unusable
		// whenever Redis blips; fail open (treat as fresh) and log, since a
		// missed replay-defense window is far less damaging than an outage
		// of the entire admission surface.
		slog.Warn("noncestore: redis claim failed, treating as fresh", "event", eventID, "error", err)
		return true
	}
	return ok
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
