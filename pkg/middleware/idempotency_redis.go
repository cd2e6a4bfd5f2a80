package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bookly/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const redisIdempotencyPrefix = "bookly:idempotency:"

// RedisIdempotencyStore shares cached responses between instances. SET NX
// keeps the first stored response for the whole TTL.
type RedisIdempotencyStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	log     *logger.Logger
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client:  client,
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
		log:     log,
	}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, redisIdempotencyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Idempotency lookup failed", "error", err)
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Warn("Discarding malformed cached response", "error", err)
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response.CreatedAt = time.Now().UTC()
	raw, err := json.Marshal(response)
	if err != nil {
		s.log.Warn("Failed to encode response for idempotency cache", "error", err)
		return
	}
	if err := s.client.SetNX(ctx, redisIdempotencyPrefix+key, raw, s.ttl).Err(); err != nil {
		s.log.Warn("Failed to store idempotent response", "error", err)
	}
}

// Stop is a no-op: the client is owned and closed by pkg/client.
func (s *RedisIdempotencyStore) Stop() {}
