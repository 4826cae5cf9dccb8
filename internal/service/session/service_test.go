package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/storage/memory"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/mocks"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/booking"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/ledger"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/pricing"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var day = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

type fixture struct {
	store    *memory.Store
	ledger   *ledger.Service
	bookings *booking.Service
	svc      *Service
	notifier *mocks.MockNotifier
	mu       sync.Mutex
	now      time.Time
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), notifier: &mocks.MockNotifier{}, now: at(8, 0)}
	clock := func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}

	require.NoError(t, f.store.Chargers().Save(context.Background(), &domain.Charger{
		ID:         "c1",
		OwnerID:    "owner",
		TotalPorts: capacity,
		Status:     domain.ChargerStatusActive,
		PriceSchedule: domain.PriceSchedule{
			PerHourRate:    dec("1.00"),
			PerEnergyRate:  dec("0.30"),
			PeakMultiplier: dec("1.5"),
		},
	}))

	log := newTestLogger()
	f.ledger = ledger.NewService(f.store, "USD", log).WithClock(clock)
	provider := pricing.NewProvider(f.store.Chargers(), mocks.NewMockCache(), time.Minute, log)
	f.bookings = booking.NewService(f.store, f.ledger, provider, f.notifier, nil, log).WithClock(clock)
	f.svc = NewService(f.store, f.bookings, f.ledger, f.notifier, nil, log).WithClock(clock)
	return f
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), domain.LedgerEntry{UserID: userID, Amount: dec(amount), Reason: domain.ReasonTopUp})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID string) string {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func (f *fixture) chargerStatus(t *testing.T) domain.ChargerStatus {
	t.Helper()
	c, err := f.store.Chargers().FindByID(context.Background(), "c1")
	require.NoError(t, err)
	return c.Status
}

func walkUp(user string) *ports.StartSessionRequest {
	return &ports.StartSessionRequest{ChargerID: "c1", UserID: user}
}

func meter(seq int64, kwh string) domain.Telemetry {
	return domain.Telemetry{Seq: seq, CumulativeKWh: dec(kwh), PowerKW: 7.2}
}

func TestStop_BillsEnergyAndTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.fund(t, "u1", "20")

	f.setNow(at(10, 0))
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, cs.ID, meter(1, "4"))
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, cs.ID, meter(2, "10"))
	require.NoError(t, err)

	f.setNow(at(12, 0))
	done, err := f.svc.Stop(ctx, cs.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCompleted, done.Status)
	assert.False(t, done.IsPeakHour)
	assert.Equal(t, "5.00", done.Cost.StringFixed(2))
	assert.Equal(t, "15.00", f.balance(t, "u1"))
	assert.False(t, done.CollectionsFlag)
	require.NotNil(t, done.LedgerTxID)

	rows, err := f.ledger.Transactions(ctx, "u1", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, *done.LedgerTxID, rows[0].ID)
	assert.Equal(t, cs.ID, rows[0].ReferenceID)
}

func TestStop_PeakMultiplier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.fund(t, "u1", "20")

	f.setNow(at(17, 0))
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, cs.ID, meter(1, "10"))
	require.NoError(t, err)

	f.setNow(at(19, 0))
	done, err := f.svc.Stop(ctx, cs.ID)

	require.NoError(t, err)
	assert.True(t, done.IsPeakHour)
	assert.Equal(t, "7.50", done.Cost.StringFixed(2))
	assert.Equal(t, "12.50", f.balance(t, "u1"))
}

func TestStop_OverdraftFlagsCollections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.fund(t, "u1", "2")

	f.setNow(at(10, 0))
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, cs.ID, meter(1, "10"))
	require.NoError(t, err)
	f.setNow(at(12, 0))

	done, err := f.svc.Stop(ctx, cs.ID)

	require.NoError(t, err)
	assert.True(t, done.CollectionsFlag)
	assert.Equal(t, "-3.00", f.balance(t, "u1"))
	overdrawn := f.notifier.OfType(domain.EventWalletOverdrawn)
	require.Len(t, overdrawn, 1)
	assert.Equal(t, "-3.00", overdrawn[0].Amount.StringFixed(2))
}

func TestStop_FailureLeavesEverythingUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.fund(t, "u1", "20")
	b, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u1", ChargerID: "c1", StartTime: at(10, 0), EndTime: at(12, 0)})
	require.NoError(t, err)

	f.setNow(at(10, 0))
	cs, err := f.svc.Start(ctx, &ports.StartSessionRequest{ChargerID: "c1", UserID: "u1", BookingID: &b.ID})
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, cs.ID, meter(1, "10"))
	require.NoError(t, err)

	f.setNow(at(12, 0))
	f.store.FailOn("wallets.AppendTransaction", errors.New("deadlock detected"))
	_, err = f.svc.Stop(ctx, cs.ID)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)

	still, _ := f.svc.Get(ctx, cs.ID)
	assert.Equal(t, domain.SessionStatusActive, still.Status)
	assert.Nil(t, still.Cost)
	bk, _ := f.bookings.Get(ctx, b.ID)
	assert.Equal(t, domain.BookingStatusActive, bk.Status)
	assert.Equal(t, "20.00", f.balance(t, "u1"))

	// retry succeeds once storage recovers
	done, err := f.svc.Stop(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "5.00", done.Cost.StringFixed(2))
	bk, _ = f.bookings.Get(ctx, b.ID)
	assert.Equal(t, domain.BookingStatusCompleted, bk.Status)
}

func TestStop_Twice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	_, err = f.svc.Stop(ctx, cs.ID)
	require.NoError(t, err)

	_, err = f.svc.Stop(ctx, cs.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.Stop(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStart_WalkUpNeedsFreePort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	_, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, walkUp("u1"))

	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
}

func TestStart_WalkUpHoldsPortForBookings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	_, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)

	_, err = f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(9, 0), EndTime: at(10, 0)})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(10, 0), EndTime: at(11, 0)})
	assert.NoError(t, err, "hold ends at 10:00")
}

func TestStart_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	first, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	again, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	active, err := f.svc.Active(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Len(t, f.notifier.OfType(domain.EventSessionStarted), 1)
}

func TestStart_WithBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	b, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u1", ChargerID: "c1", StartTime: at(10, 0), EndTime: at(11, 0)})
	require.NoError(t, err)
	req := &ports.StartSessionRequest{ChargerID: "c1", UserID: "u1", BookingID: &b.ID}

	_, err = f.svc.Start(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation, "too early")

	f.setNow(at(9, 50))
	cs, err := f.svc.Start(ctx, req)
	require.NoError(t, err)
	assert.False(t, cs.IsWalkUp())
	require.NotNil(t, cs.HoldUntil)
	assert.True(t, cs.HoldUntil.Equal(at(11, 0)), "booked session holds until the booking ends")

	again, err := f.svc.Start(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, cs.ID, again.ID)

	bk, _ := f.bookings.Get(ctx, b.ID)
	assert.Equal(t, domain.BookingStatusActive, bk.Status)

	other := &ports.StartSessionRequest{ChargerID: "c1", UserID: "u2", BookingID: &b.ID}
	_, err = f.svc.Start(ctx, other)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStart_CancelledBookingCannotCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	b, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u1", ChargerID: "c1", StartTime: at(8, 10), EndTime: at(9, 30)})
	require.NoError(t, err)
	_, err = f.bookings.Cancel(ctx, b.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, &ports.StartSessionRequest{ChargerID: "c1", UserID: "u1", BookingID: &b.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestBusyFlagFollowsFreePorts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	assert.Equal(t, domain.ChargerStatusBusy, f.chargerStatus(t))

	_, err = f.svc.Start(ctx, walkUp("u2"))
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded, "busy is informational, capacity still decides")

	_, err = f.svc.Stop(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargerStatusActive, f.chargerStatus(t))
}

func TestStart_DisabledCharger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	require.NoError(t, f.store.Chargers().UpdateStatus(ctx, "c1", domain.ChargerStatusDisabled))

	_, err := f.svc.Start(ctx, walkUp("u1"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordProgress_SequenceAndMeterReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)

	steps := []struct {
		seq    int64
		kwh    string
		energy string
		stale  bool
	}{
		{1, "2.5", "2.5", false},
		{2, "4", "4", false},
		{2, "9", "4", true}, // duplicate
		{1, "9", "4", true},
		{3, "1", "5", false}, // meter reset counts from zero
		{0, "2", "6", false}, // unsequenced report
		{4, "3.25", "7.25", false},
	}
	for _, s := range steps {
		got, err := f.svc.RecordProgress(ctx, cs.ID, meter(s.seq, s.kwh))
		if s.stale {
			assert.ErrorIs(t, err, domain.ErrInvalidState, "seq %d", s.seq)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, s.energy, got.EnergyDelivered.String(), "seq %d", s.seq)
	}

	got, err := f.svc.Get(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.25", got.EnergyDelivered.String())
	assert.EqualValues(t, 4, got.TelemetrySeq)

	_, err = f.svc.RecordProgress(ctx, cs.ID, domain.Telemetry{Seq: 9, CumulativeKWh: dec("-1")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordProgress_UnsequencedReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)

	got, err := f.svc.RecordProgress(ctx, cs.ID, domain.Telemetry{CumulativeKWh: dec("5")})
	require.NoError(t, err)
	assert.Equal(t, "5", got.EnergyDelivered.String())

	got, err = f.svc.RecordProgress(ctx, cs.ID, domain.Telemetry{CumulativeKWh: dec("8")})
	require.NoError(t, err)
	assert.Equal(t, "8", got.EnergyDelivered.String())
	assert.Zero(t, got.TelemetrySeq)
}

func TestStart_WalkUpOverrunBlocksLaterBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.setNow(at(10, 0))
	_, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)

	// still charging half an hour after the hold lapsed
	f.setNow(at(12, 30))
	_, err = f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(12, 45), EndTime: at(13, 45)})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = f.svc.Start(ctx, walkUp("u3"))
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
}

func TestStart_BookedSessionOverrunBlocksLaterBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	b, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u1", ChargerID: "c1", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)

	f.setNow(at(9, 0))
	_, err = f.svc.Start(ctx, &ports.StartSessionRequest{ChargerID: "c1", UserID: "u1", BookingID: &b.ID})
	require.NoError(t, err)

	f.setNow(at(10, 15))
	_, err = f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(10, 30), EndTime: at(11, 30)})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
}

func TestStart_BookedSessionCountedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	b, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u1", ChargerID: "c1", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)

	f.setNow(at(9, 0))
	_, err = f.svc.Start(ctx, &ports.StartSessionRequest{ChargerID: "c1", UserID: "u1", BookingID: &b.ID})
	require.NoError(t, err)

	_, err = f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(9, 15), EndTime: at(9, 45)})
	assert.NoError(t, err, "the charging booking holds one port, not two")
}

func TestStart_EarlyStartNeedsFreeGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	before, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u2", ChargerID: "c1", StartTime: at(9, 0), EndTime: at(10, 0)})
	require.NoError(t, err)
	b, err := f.bookings.Create(ctx, &ports.CreateBookingRequest{UserID: "u1", ChargerID: "c1", StartTime: at(10, 0), EndTime: at(11, 0)})
	require.NoError(t, err)
	req := &ports.StartSessionRequest{ChargerID: "c1", UserID: "u1", BookingID: &b.ID}

	f.setNow(at(9, 50))
	_, err = f.svc.Start(ctx, req)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = f.bookings.Cancel(ctx, before.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, req)
	assert.NoError(t, err)
}

func TestPauseResume_ExcludesPausedTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.fund(t, "u1", "10")

	f.setNow(at(10, 0))
	cs, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)

	f.setNow(at(10, 30))
	paused, err := f.svc.Pause(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusPaused, paused.Status)

	_, err = f.svc.Pause(ctx, cs.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.RecordProgress(ctx, cs.ID, meter(1, "1"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	f.setNow(at(11, 0))
	resumed, err := f.svc.Resume(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resumed.PausedDuration)

	_, err = f.svc.Resume(ctx, cs.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	f.setNow(at(11, 45))
	_, err = f.svc.Pause(ctx, cs.ID)
	require.NoError(t, err)

	// stopping while paused closes the pause first
	f.setNow(at(12, 0))
	done, err := f.svc.Stop(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, 75*time.Minute, done.BilledDuration(at(12, 0)))
	assert.Equal(t, "1.25", done.Cost.StringFixed(2))
}

func TestHistoryAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.fund(t, "u1", "50")

	f.setNow(at(10, 0))
	first, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, first.ID, meter(1, "10"))
	require.NoError(t, err)
	f.setNow(at(12, 0))
	_, err = f.svc.Stop(ctx, first.ID)
	require.NoError(t, err)

	f.setNow(at(18, 0))
	second, err := f.svc.Start(ctx, walkUp("u1"))
	require.NoError(t, err)
	_, err = f.svc.RecordProgress(ctx, second.ID, meter(1, "10"))
	require.NoError(t, err)
	f.setNow(at(20, 0))
	_, err = f.svc.Stop(ctx, second.ID)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)

	stats, err := f.svc.UserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, "20", stats.EnergyKWh.String())
	assert.Equal(t, int64(240), stats.ChargedMinutes)
	assert.Equal(t, "12.50", stats.TotalCost.StringFixed(2))
	assert.Equal(t, 1, stats.PeakSessions)

	morning, err := f.svc.ChargerStats(ctx, "c1", at(0, 0), at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, morning.Sessions)

	_, err = f.svc.ChargerStats(ctx, "c1", at(12, 0), at(0, 0))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
