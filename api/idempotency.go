package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "board-sync:idem:"

// HeaderIdempotencyKey lets clients repeat a mutation without queuing a
// second job.
const HeaderIdempotencyKey = "Idempotency-Key"

// Deduper maps client idempotency keys to the job queued for them.
type Deduper interface {
	// Claim records jobID under key. When the key is already taken it returns
	// the job id stored with it and false.
	Claim(ctx context.Context, userID, key, jobID string) (string, bool, error)
	Release(ctx context.Context, userID, key string) error
}

// RedisDeduper stores idempotency keys in Redis so all api instances agree on
// them.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return idempotencyPrefix + userID + ":" + key
}

func (r *RedisDeduper) Claim(ctx context.Context, userID, key, jobID string) (string, bool, error) {
	k := r.key(userID, key)
	ok, err := r.client.SetNX(ctx, k, jobID, r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return jobID, true, nil
	}
	existing, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		ok, err = r.client.SetNX(ctx, k, jobID, r.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return jobID, true, nil
		}
		existing, err = r.client.Get(ctx, k).Result()
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

// Release forgets key so a failed request may be retried with it.
func (r *RedisDeduper) Release(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
