package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore provides durable idempotency enforcement shared
// across gateway replicas, backed by Redis. Preferred over
// PostgresIdempotencyStore when the control-plane database is not
// co-located with the request path, since a cache miss on the idempotency
// check must not add primary-database latency to every mutating call.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a new Redis-backed idempotency store.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

type redisCachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}

// Check returns a cached response if the idempotency key was seen before
// and has not yet expired from Redis (TTL is enforced by Redis itself).
func (s *RedisIdempotencyStore) Check(key string) (*cachedResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, idempotencyRedisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var stored redisCachedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false
	}

	return &cachedResponse{
		StatusCode: stored.StatusCode,
		Headers:    stored.Headers,
		Body:       stored.Body,
		CachedAt:   time.Now(),
	}, true
}

// Set stores an idempotency key and its response with the store's TTL.
func (s *RedisIdempotencyStore) Set(key string, statusCode int, headers http.Header, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := json.Marshal(redisCachedResponse{StatusCode: statusCode, Headers: headers, Body: body})
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, idempotencyRedisKey(key), raw, s.ttl).Err()
}

func idempotencyRedisKey(key string) string {
	return "auzguard:idempotency:" + key
}
