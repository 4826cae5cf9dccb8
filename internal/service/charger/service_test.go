package charger

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
	"github.com/Namalekanayaka/evcharging-rental/internal/service/pricing"
)

func newService(t *testing.T) (*Service, *memory.Store, *mocks.MockCache) {
	t.Helper()
	store := memory.NewStore()
	cache := mocks.NewMockCache()
	prices := pricing.NewProvider(store.Chargers(), cache, time.Minute, zap.NewNop())
	return NewService(store, prices, zap.NewNop()), store, cache
}

func schedule(hour string) domain.PriceSchedule {
	return domain.PriceSchedule{
		PerHourRate:    decimal.RequireFromString(hour),
		PerEnergyRate:  decimal.RequireFromString("0.30"),
		PeakMultiplier: decimal.RequireFromString("1.5"),
	}
}

func TestRegister(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	c, err := svc.Register(ctx, &domain.Charger{OwnerID: "op-1", Name: "Depot", TotalPorts: 2, PriceSchedule: schedule("2.00")})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, domain.ChargerStatusActive, c.Status)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Depot", got.Name)
	assert.Equal(t, 2, got.TotalPorts)
}

func TestRegister_Rejects(t *testing.T) {
	svc, _, _ := newService(t)

	tests := []struct {
		name    string
		charger domain.Charger
	}{
		{"no owner", domain.Charger{TotalPorts: 1}},
		{"no ports", domain.Charger{OwnerID: "op-1"}},
		{"negative rate", domain.Charger{OwnerID: "op-1", TotalPorts: 1, PriceSchedule: schedule("-1")}},
		{"negative multiplier", domain.Charger{OwnerID: "op-1", TotalPorts: 1, PriceSchedule: domain.PriceSchedule{PeakMultiplier: decimal.NewFromInt(-2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.charger
			_, err := svc.Register(context.Background(), &c)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestSetStatus(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, &domain.Charger{OwnerID: "op-1", TotalPorts: 1})
	require.NoError(t, err)

	out, err := svc.SetStatus(ctx, c.ID, domain.ChargerStatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargerStatusDisabled, out.Status)

	_, err = svc.SetStatus(ctx, c.ID, "exploded")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.SetStatus(ctx, "missing", domain.ChargerStatusActive)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePricing_InvalidatesCachedSchedule(t *testing.T) {
	svc, _, cache := newService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, &domain.Charger{OwnerID: "op-1", TotalPorts: 1, PriceSchedule: schedule("2.00")})
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "pricing:"+c.ID, "stale", time.Minute))

	out, err := svc.UpdatePricing(ctx, c.ID, schedule("3.50"))
	require.NoError(t, err)
	assert.True(t, out.PriceSchedule.PerHourRate.Equal(decimal.RequireFromString("3.50")))
	assert.False(t, cache.Has("pricing:"+c.ID))

	_, err = svc.UpdatePricing(ctx, c.ID, schedule("-0.01"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGet_StorageFailure(t *testing.T) {
	svc, store, _ := newService(t)
	store.FailOn("chargers.FindByID", errors.New("disk on fire"))

	_, err := svc.Get(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}
