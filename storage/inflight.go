package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"board-sync/reconcile"
)

const (
	inflightPrefix  = "board-sync:inflight:"
	placementPrefix = "board-sync:placement:"
)

var _ reconcile.InflightTracker = (*RedisTracker)(nil)

// RedisTracker shares the in-flight markers and last known card placements
// between worker instances.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker creates a tracker. ttl bounds how long a crashed worker can
// keep a project marked in flight.
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

func (r *RedisTracker) Begin(ctx context.Context, projectID string) (bool, error) {
	return r.client.SetNX(ctx, inflightPrefix+projectID, 1, r.ttl).Result()
}

func (r *RedisTracker) End(ctx context.Context, projectID string) error {
	return r.client.Del(ctx, inflightPrefix+projectID).Err()
}

func (r *RedisTracker) LastKnown(ctx context.Context, projectID string) (*reconcile.Placement, error) {
	data, err := r.client.Get(ctx, placementPrefix+projectID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p reconcile.Placement
	if err := sonic.ConfigStd.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisTracker) Remember(ctx context.Context, p reconcile.Placement) error {
	p.Created = false
	data, err := sonic.ConfigStd.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, placementPrefix+p.ProjectID, data, 0).Err()
}

func (r *RedisTracker) Forget(ctx context.Context, projectID string) error {
	return r.client.Del(ctx, placementPrefix+projectID).Err()
}
