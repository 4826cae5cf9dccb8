//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/testsupport"
)

func TestRedisStore_SharedWindow(t *testing.T) {
	client := testsupport.Redis(t)
	require.NoError(t, client.FlushAll(context.Background()).Err())

	now := time.Now()
	rule := Rule{Name: "booking_create", Limit: 5, Window: time.Minute}
	// two limiters over one store behave like two instances behind a balancer
	a := NewLimiter(NewRedisStore(client, "test:"), zap.NewNop()).WithClock(func() time.Time { return now })
	b := NewLimiter(NewRedisStore(client, "test:"), zap.NewNop()).WithClock(func() time.Time { return now })

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 12; i++ {
		l := a
		if i%2 == 1 {
			l = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), rule, "user-1")
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)

	d, err := a.Allow(context.Background(), rule, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), d.ResetAt.UnixMilli())

	ttl, err := client.PTTL(context.Background(), "test:booking_create:user-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
