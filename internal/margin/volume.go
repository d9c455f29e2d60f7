package margin

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// VolumeTracker reads and advances a store's cumulative SecondSol wattage.
// The reading feeds Input.CumulativeWatts so the calculator itself stays pure.
type VolumeTracker interface {
	CumulativeWatts(ctx context.Context, storeID string) (int64, error)
	AddWatts(ctx context.Context, storeID string, watts int64) (int64, error)
}

// RedisVolumeTracker keeps the counter in Redis so all producers share one
// monotonic reading.
type RedisVolumeTracker struct {
	client *redis.Client
}

func NewRedisVolumeTracker(client *redis.Client) *RedisVolumeTracker {
	return &RedisVolumeTracker{client: client}
}

func volumeKey(storeID string) string {
	return fmt.Sprintf("margin:watts:%s", storeID)
}

func (t *RedisVolumeTracker) CumulativeWatts(ctx context.Context, storeID string) (int64, error) {
	v, err := t.client.Get(ctx, volumeKey(storeID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("margin: read watts counter: %w", err)
	}
	return v, nil
}

func (t *RedisVolumeTracker) AddWatts(ctx context.Context, storeID string, watts int64) (int64, error) {
	if watts <= 0 {
		return t.CumulativeWatts(ctx, storeID)
	}
	v, err := t.client.IncrBy(ctx, volumeKey(storeID), watts).Result()
	if err != nil {
		return 0, fmt.Errorf("margin: advance watts counter: %w", err)
	}
	return v, nil
}
