package margin

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *RedisVolumeTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisVolumeTracker(client)
}

func TestVolumeTrackerStartsAtZero(t *testing.T) {
	tracker := newTestTracker(t)
	v, err := tracker.CumulativeWatts(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestVolumeTrackerAccumulates(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	v, err := tracker.AddWatts(ctx, "store-1", 4400)
	require.NoError(t, err)
	assert.Equal(t, int64(4400), v)

	v, err = tracker.AddWatts(ctx, "store-1", 600)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), v)

	// Stores do not share counters.
	other, err := tracker.CumulativeWatts(ctx, "store-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)
}

func TestVolumeTrackerIgnoresNonPositive(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.AddWatts(ctx, "store-1", 100)
	require.NoError(t, err)
	v, err := tracker.AddWatts(ctx, "store-1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}
