package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOfflineCache(t *testing.T) *Cache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client, DefaultConfig())
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, TTLSnapshot, cfg.SnapshotTTL)
}

func TestCache_ValidatesBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	c := newOfflineCache(t)

	assert.ErrorIs(t, c.SetBytes(ctx, "", []byte("x"), 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.SetBytes(ctx, "k", []byte("x"), -time.Second), ErrCacheInvalidTTL)

	_, err := c.GetBytes(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)

	require.NoError(t, c.Delete(ctx))
}
