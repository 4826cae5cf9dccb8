package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

func TestExpire_PendingRefundsInFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, "10.00")
	f.fund(t, "u1", "20")

	req := request("u1", at(10, 0), at(11, 0))
	req.RequireConfirmation = true
	req.Prepay = true
	b, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "10.00", f.balance(t, "u1"))

	f.setNow(base.Add(15 * time.Minute))
	pending, err := f.svc.PendingBefore(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	changed, err := f.svc.Expire(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	expired, _ := f.svc.Get(ctx, b.ID)
	assert.Equal(t, domain.BookingStatusExpired, expired.Status)
	assert.NotNil(t, expired.ExpiredAt)
	assert.Equal(t, "20.00", f.balance(t, "u1"))
	assert.Len(t, f.notifier.OfType(domain.EventBookingExpired), 1)

	changed, err = f.svc.Expire(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, changed, "already expired")
}

func TestExpire_SkipsConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, "10.00")
	req := request("u1", at(10, 0), at(11, 0))
	req.RequireConfirmation = true
	b, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, b.ID)
	require.NoError(t, err)

	changed, err := f.svc.Expire(ctx, b.ID)

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCompleteOverrun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, "10.00")
	idle, err := f.svc.Create(ctx, request("u1", at(10, 0), at(11, 0)))
	require.NoError(t, err)
	charging, err := f.svc.Create(ctx, request("u2", at(10, 0), at(11, 0)))
	require.NoError(t, err)

	bookingID := charging.ID
	require.NoError(t, f.store.WithTx(ctx, func(tx ports.Repositories) error {
		if _, err := f.svc.ActivateTx(ctx, tx, charging.ID, "u2", "c1"); err != nil {
			return err
		}
		return tx.Sessions().Save(ctx, &domain.ChargingSession{
			ID: "s1", BookingID: &bookingID, ChargerID: "c1", UserID: "u2",
			StartTime: at(10, 0), Status: domain.SessionStatusActive,
		})
	}))

	f.setNow(at(11, 30))
	overrun, err := f.svc.Overrun(ctx, at(11, 30))
	require.NoError(t, err)
	assert.Len(t, overrun, 2)

	changed, err := f.svc.CompleteOverrun(ctx, idle.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.CompleteOverrun(ctx, charging.ID)
	require.NoError(t, err)
	assert.False(t, changed, "open session keeps the booking active")

	done, _ := f.svc.Get(ctx, idle.ID)
	assert.Equal(t, domain.BookingStatusCompleted, done.Status)
	active, _ := f.svc.Get(ctx, charging.ID)
	assert.Equal(t, domain.BookingStatusActive, active.Status)
}
