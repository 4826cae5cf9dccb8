package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

func TestLocalCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Hour, zap.NewNop())
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestLocalCache_EncodesStructsAsJSON(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Hour, zap.NewNop())
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", struct {
		Rate string `json:"rate"`
	}{"2.50"}, 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate":"2.50"}`, got)
}

func TestLocalCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(time.Hour, zap.NewNop())
	defer c.Close()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)

	c.cleanup()
	c.mu.RLock()
	assert.Empty(t, c.data)
	c.mu.RUnlock()
}

func TestLocalCache_CloseTwice(t *testing.T) {
	c := NewLocalCache(time.Hour, zap.NewNop())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
