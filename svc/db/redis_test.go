package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a live server: TEST_REDIS_URL=redis://localhost:6379/15
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })
	r := NewRedisClient(client, time.Second)
	if err := r.Ping(context.Background()); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return r
}

func TestRedisPasteCache(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	p := newPaste("cached bytes", "")

	miss, err := r.GetPaste(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, r.CachePaste(ctx, p, time.Minute))
	got, err := r.GetPaste(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Data, got.Data)
	assert.Equal(t, p.Mime, got.Mime)

	require.NoError(t, r.Delete(ctx, p.ID))
	got, err = r.GetPaste(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisRateLimitWindow(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	key := "rl_test:" + time.Now().Format(time.RFC3339Nano)
	for i := 1; i <= 3; i++ {
		usage, err := r.RateLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, usage)
	}
	usage, err := r.RateLimit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, usage, "usage stops at the limit")
}
