package sidstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the pending-SID table in Redis so SIDs minted through
// one relay pod can be claimed through another.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "relay:sid:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) redisKey(eventID, sid string) string {
	return s.keyPrefix + eventID + ":" + sid
}

func (s *RedisStore) Create(eventID, sid, pcid string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, _ := json.Marshal(Entry{PCID: pcid, Claimed: false})
	ok, err := s.client.SetNX(ctx, s.redisKey(eventID, sid), payload, ClampTTL(ttl)).Result()
	if err != nil {
		slog.Warn("sidstore: redis create failed", "event", eventID, "sid", sid, "error", err)
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(eventID, sid string) (Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, s.redisKey(eventID, sid)).Bytes()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (s *RedisStore) MarkClaimed(eventID, sid string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	k := s.redisKey(eventID, sid)
	ttl, err := s.client.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		return
	}
	e, ok := s.Get(eventID, sid)
	if !ok {
		return
	}
	e.Claimed = true
	payload, _ := json.Marshal(e)
	s.client.Set(ctx, k, payload, ttl)
}
