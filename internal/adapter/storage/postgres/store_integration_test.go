//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/cache"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/booking"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/ledger"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/pricing"
	"github.com/Namalekanayaka/evcharging-rental/internal/testsupport"
)

type env struct {
	store    *Store
	users    *UserRepository
	ledger   *ledger.Service
	bookings *booking.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	dsn := testsupport.Postgres(t)

	db, err := NewConnection(dsn, Options{MaxOpenConns: 20}, log)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	require.NoError(t, RunMigrations(db))
	testsupport.Truncate(t, dsn)

	store := NewStore(db, log)
	local := cache.NewLocalCache(time.Minute, log)
	t.Cleanup(func() { local.Close() })

	ledgerSvc := ledger.NewService(store, "USD", log)
	provider := pricing.NewProvider(store.Chargers(), local, time.Minute, log)
	return &env{
		store:    store,
		users:    NewUserRepository(db, log),
		ledger:   ledgerSvc,
		bookings: booking.NewService(store, ledgerSvc, provider, nil, nil, log),
	}
}

func (e *env) charger(t *testing.T, capacity int) string {
	t.Helper()
	id := uuid.New().String()
	require.NoError(t, e.store.Chargers().Save(context.Background(), &domain.Charger{
		ID:         id,
		OwnerID:    uuid.New().String(),
		Name:       "Depot " + id[:8],
		TotalPorts: capacity,
		Status:     domain.ChargerStatusActive,
		PriceSchedule: domain.PriceSchedule{
			PerHourRate:   decimal.NewFromInt(4),
			PerEnergyRate: decimal.RequireFromString("0.30"),
		},
	}))
	return id
}

func window() (time.Time, time.Time) {
	start := time.Now().UTC().Add(3 * time.Hour).Truncate(time.Hour)
	return start, start.Add(time.Hour)
}

func TestStore_LookupsReturnNilWhenMissing(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	c, err := e.store.Chargers().FindByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, c)

	b, err := e.store.Bookings().FindByID(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, b)

	s, err := e.store.Sessions().FindOpenByBookingID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestStore_ConcurrentCreatesNeverOverbook(t *testing.T) {
	e := setup(t)
	chargerID := e.charger(t, 3)
	start, end := window()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.bookings.Create(context.Background(), &ports.CreateBookingRequest{
				UserID: uuid.New().String(), ChargerID: chargerID, StartTime: start, EndTime: end,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, domain.ErrCapacityExceeded):
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, attempts-3, full)

	n, err := e.store.Bookings().CountOverlapping(context.Background(), chargerID, start, end, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_EmergencyPreemptsOldestReservation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	chargerID := e.charger(t, 1)
	start, end := window()

	victimUser := uuid.New().String()
	_, err := e.ledger.Credit(ctx, domain.LedgerEntry{UserID: victimUser, Amount: decimal.NewFromInt(10), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	victim, err := e.bookings.Create(ctx, &ports.CreateBookingRequest{
		UserID: victimUser, ChargerID: chargerID, StartTime: start, EndTime: end, Prepay: true,
	})
	require.NoError(t, err)

	_, err = e.bookings.Create(ctx, &ports.CreateBookingRequest{
		UserID: uuid.New().String(), ChargerID: chargerID, StartTime: start, EndTime: end, Emergency: true,
	})
	require.NoError(t, err)

	got, err := e.bookings.Get(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	require.NotNil(t, got.RefundAmount)
	assert.True(t, got.RefundAmount.Equal(decimal.NewFromInt(4)))

	rec, err := e.ledger.Reconcile(ctx, victimUser)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.True(t, rec.Balance.Equal(decimal.NewFromInt(10)))
}

func TestStore_FailedPrepaymentLeavesNoBooking(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	chargerID := e.charger(t, 1)
	start, end := window()
	user := uuid.New().String()

	_, err := e.bookings.Create(ctx, &ports.CreateBookingRequest{
		UserID: user, ChargerID: chargerID, StartTime: start, EndTime: end, Prepay: true,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	list, err := e.store.Bookings().FindByUserID(ctx, user, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	sum, err := e.store.Wallets().SumTransactions(ctx, user)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestStore_OpenSessionHoldCounts(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	chargerID := e.charger(t, 2)
	now := time.Now().UTC()
	hold := now.Add(2 * time.Hour)

	require.NoError(t, e.store.Sessions().Save(ctx, &domain.ChargingSession{
		ID: uuid.New().String(), ChargerID: chargerID, UserID: uuid.New().String(),
		StartTime: now, HoldUntil: &hold, Status: domain.SessionStatusActive,
	}))

	n, err := e.store.Sessions().CountOccupying(ctx, chargerID, now.Add(time.Hour), now.Add(3*time.Hour), now, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.store.Sessions().CountOccupying(ctx, chargerID, hold, hold.Add(time.Hour), now, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// still open after the hold lapsed
	later := hold.Add(30 * time.Minute)
	n, err = e.store.Sessions().CountOccupying(ctx, chargerID, later.Add(15*time.Minute), later.Add(time.Hour), later, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ChargingBookingCountedBySession(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	chargerID := e.charger(t, 2)
	start, end := window()
	b := &domain.Booking{
		ID: uuid.New().String(), UserID: uuid.New().String(), ChargerID: chargerID,
		StartTime: start, EndTime: end, DurationMinutes: 60,
		Priority: domain.BookingPriorityNormal, Status: domain.BookingStatusActive,
	}
	require.NoError(t, e.store.Bookings().Save(ctx, b))

	n, err := e.store.Bookings().CountOverlapping(ctx, chargerID, start, end, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, e.store.Sessions().Save(ctx, &domain.ChargingSession{
		ID: uuid.New().String(), BookingID: &b.ID, ChargerID: chargerID, UserID: b.UserID,
		StartTime: start, HoldUntil: &end, Status: domain.SessionStatusActive,
	}))

	n, err = e.store.Bookings().CountOverlapping(ctx, chargerID, start, end, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = e.store.Sessions().CountOccupying(ctx, chargerID, start, end, start, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.store.Sessions().CountOccupying(ctx, chargerID, start, end, start, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_EnsureWalletIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := uuid.New().String()

	for i := 0; i < 2; i++ {
		require.NoError(t, e.store.Wallets().Ensure(ctx, &domain.Wallet{
			ID: uuid.New().String(), UserID: user, Currency: "USD",
		}))
	}
	w, err := e.store.Wallets().FindByUserID(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.True(t, w.Balance.IsZero())
}

func TestUserRepository_EmailFor(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	subscribed := &domain.User{ID: uuid.New().String(), Name: "Ana", Email: "ana@example.com", Role: domain.UserRoleUser, NotifyByEmail: true}
	muted := &domain.User{ID: uuid.New().String(), Name: "Bo", Email: "bo@example.com", Role: domain.UserRoleUser}
	require.NoError(t, e.users.Save(ctx, subscribed))
	require.NoError(t, e.users.Save(ctx, muted))
	// notify_by_email defaults to true on insert
	require.NoError(t, e.store.db.Model(muted).Update("notify_by_email", false).Error)

	email, err := e.users.EmailFor(ctx, subscribed.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", email)

	email, err = e.users.EmailFor(ctx, muted.ID)
	require.NoError(t, err)
	assert.Empty(t, email)

	email, err = e.users.EmailFor(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, email)
}
