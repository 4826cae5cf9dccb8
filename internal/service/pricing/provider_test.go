package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/storage/memory"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/mocks"
)

func seed(t *testing.T, store *memory.Store, rate string) {
	t.Helper()
	require.NoError(t, store.Chargers().Save(context.Background(), &domain.Charger{
		ID:         "c1",
		TotalPorts: 1,
		Status:     domain.ChargerStatusActive,
		PriceSchedule: domain.PriceSchedule{
			PerHourRate:    decimal.RequireFromString(rate),
			PerEnergyRate:  decimal.RequireFromString("0.30"),
			PeakMultiplier: decimal.NewFromInt(1),
		},
	}))
}

func TestSchedule_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, "2.50")
	cache := mocks.NewMockCache()
	p := NewProvider(store.Chargers(), cache, time.Minute, zap.NewNop())

	first, err := p.Schedule(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "2.5", first.PerHourRate.String())
	assert.True(t, cache.Has("pricing:c1"))

	// a price change in the store is not seen until invalidation
	seed(t, store, "4.00")
	cached, err := p.Schedule(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "2.5", cached.PerHourRate.String())

	require.NoError(t, p.Invalidate(ctx, "c1"))
	fresh, err := p.Schedule(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "4", fresh.PerHourRate.String())
}

func TestSchedule_UnknownCharger(t *testing.T) {
	p := NewProvider(memory.NewStore().Chargers(), mocks.NewMockCache(), 0, zap.NewNop())
	_, err := p.Schedule(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSchedule_CacheOutageFallsBackToStore(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "3.00")
	cache := mocks.NewMockCache()
	cache.GetFunc = func(context.Context, string) (string, error) { return "", errors.New("connection refused") }
	cache.SetFunc = func(context.Context, string, interface{}, time.Duration) error { return errors.New("connection refused") }

	p := NewProvider(store.Chargers(), cache, time.Minute, zap.NewNop())
	got, err := p.Schedule(context.Background(), "c1")

	require.NoError(t, err)
	assert.Equal(t, "3", got.PerHourRate.String())
}
