package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/availability"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/billing"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/notify"
)

var tracer = otel.Tracer("evcharging-rental/session")

// BookingLifecycle drives the booking side of a session inside its transaction
type BookingLifecycle interface {
	ActivateTx(ctx context.Context, tx ports.Repositories, bookingID, userID, chargerID string) (*domain.Booking, error)
	CompleteTx(ctx context.Context, tx ports.Repositories, bookingID string) (*domain.Booking, error)
}

// Config holds charging session policy
type Config struct {
	// WalkUpHold is how long a walk-up session is assumed to hold its port
	WalkUpHold time.Duration
	// EarlyStart is how long before its window a booking may start charging
	EarlyStart time.Duration
	Peak       billing.PeakWindow
}

// DefaultConfig returns the default session policy
func DefaultConfig() *Config {
	return &Config{
		WalkUpHold: 2 * time.Hour,
		EarlyStart: 15 * time.Minute,
		Peak:       billing.DefaultPeakWindow(time.UTC),
	}
}

// Service implements the charging session engine
type Service struct {
	store    ports.UnitOfWork
	bookings BookingLifecycle
	ledger   ports.LedgerPoster
	notifier ports.Notifier
	config   *Config
	log      *zap.Logger
	now      func() time.Time
}

var _ ports.SessionService = (*Service)(nil)

// NewService creates a new session service
func NewService(
	store ports.UnitOfWork,
	bookings BookingLifecycle,
	ledger ports.LedgerPoster,
	notifier ports.Notifier,
	config *Config,
	log *zap.Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		bookings: bookings,
		ledger:   ledger,
		notifier: notifier,
		config:   config,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start opens a charging session. With a booking the booking becomes
// active and holds the port; a walk-up must find a free port for the hold
// period. Starting again returns the already open session.
func (s *Service) Start(ctx context.Context, req *ports.StartSessionRequest) (_ *domain.ChargingSession, err error) {
	ctx, span := tracer.Start(ctx, "session.Start", trace.WithAttributes(
		attribute.String("charger_id", req.ChargerID),
		attribute.Bool("walk_up", req.BookingID == nil),
	))
	defer func() { endSpan(span, err) }()

	if req.UserID == "" {
		return nil, domain.Validation("user id is required")
	}
	if req.ChargerID == "" {
		return nil, domain.Validation("charger id is required")
	}

	now := s.now()
	var (
		session *domain.ChargingSession
		created bool
	)
	err = s.store.WithTx(ctx, func(tx ports.Repositories) error {
		created = false

		charger, err := tx.Chargers().FindByIDForUpdate(ctx, req.ChargerID)
		if err != nil {
			return domain.StorageFailure("lock charger", err)
		}
		if charger == nil {
			return domain.NotFound("charger", req.ChargerID)
		}
		if !charger.Bookable() {
			return domain.InvalidState("charger", charger.ID, charger.Status, "charger is not accepting sessions")
		}

		existing, err := s.findOpen(ctx, tx, req)
		if err != nil {
			return err
		}
		if existing != nil {
			session = existing
			return nil
		}

		cs := &domain.ChargingSession{
			ID:        uuid.New().String(),
			BookingID: req.BookingID,
			ChargerID: charger.ID,
			UserID:    req.UserID,
			StartTime: now,
			Status:    domain.SessionStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if req.BookingID != nil {
			b, err := s.activateBooking(ctx, tx, charger, req, now)
			if err != nil {
				return err
			}
			holdUntil := b.EndTime
			cs.HoldUntil = &holdUntil
		} else {
			holdUntil := now.Add(s.config.WalkUpHold)
			avail, err := availability.Occupancy(ctx, tx, charger, now, holdUntil, now, "")
			if err != nil {
				return err
			}
			if !avail.Admissible() {
				telemetry.CapacityRejectionsTotal.WithLabelValues("walk_up").Inc()
				return domain.CapacityExceeded(charger.ID, avail.OccupiedPorts, avail.TotalPorts)
			}
			cs.HoldUntil = &holdUntil
		}

		if err := tx.Sessions().Save(ctx, cs); err != nil {
			return domain.StorageFailure("save session", err)
		}
		if err := s.refreshBusy(ctx, tx, charger, now); err != nil {
			return err
		}

		session = cs
		created = true
		return nil
	})
	if err != nil {
		s.log.Warn("Charging session rejected",
			zap.String("user_id", req.UserID),
			zap.String("charger_id", req.ChargerID),
			zap.Error(err),
		)
		return nil, err
	}

	if created {
		telemetry.ActiveChargingSessions.Inc()
		s.notifier.Notify(ctx, sessionEvent(domain.EventSessionStarted, session, now))
		s.log.Info("Charging session started",
			zap.String("session_id", session.ID),
			zap.String("user_id", session.UserID),
			zap.String("charger_id", session.ChargerID),
			zap.Bool("walk_up", session.IsWalkUp()),
		)
	}
	return session, nil
}

func (s *Service) findOpen(ctx context.Context, tx ports.Repositories, req *ports.StartSessionRequest) (*domain.ChargingSession, error) {
	if req.BookingID != nil {
		open, err := tx.Sessions().FindOpenByBookingID(ctx, *req.BookingID)
		if err != nil {
			return nil, domain.StorageFailure("find open session", err)
		}
		if open != nil && open.UserID != req.UserID {
			return nil, domain.Validation("booking %s is charging for another user", *req.BookingID)
		}
		return open, nil
	}

	open, err := tx.Sessions().FindOpenByUserID(ctx, req.UserID)
	if err != nil {
		return nil, domain.StorageFailure("find open sessions", err)
	}
	for i := range open {
		if open[i].ChargerID == req.ChargerID && open[i].IsWalkUp() {
			return &open[i], nil
		}
	}
	return nil, nil
}

// activateBooking starts the booked window. A session started inside the
// early-start grace takes its port before the booking does, so the gap up
// to the booking start must be free.
func (s *Service) activateBooking(ctx context.Context, tx ports.Repositories, charger *domain.Charger, req *ports.StartSessionRequest, now time.Time) (*domain.Booking, error) {
	b, err := tx.Bookings().FindByID(ctx, *req.BookingID)
	if err != nil {
		return nil, domain.StorageFailure("find booking", err)
	}
	if b == nil {
		return nil, domain.NotFound("booking", *req.BookingID)
	}
	if now.Before(b.StartTime.Add(-s.config.EarlyStart)) {
		return nil, domain.Validation("booking %s starts at %s", b.ID, b.StartTime.Format(time.RFC3339))
	}
	if !now.Before(b.EndTime) {
		return nil, domain.Validation("booking %s ended at %s", b.ID, b.EndTime.Format(time.RFC3339))
	}
	if now.Before(b.StartTime) && b.ChargerID == charger.ID {
		avail, err := availability.Occupancy(ctx, tx, charger, now, b.StartTime, now, b.ID)
		if err != nil {
			return nil, err
		}
		if !avail.Admissible() {
			telemetry.CapacityRejectionsTotal.WithLabelValues("early_start").Inc()
			return nil, domain.CapacityExceeded(charger.ID, avail.OccupiedPorts, avail.TotalPorts)
		}
	}
	return s.bookings.ActivateTx(ctx, tx, b.ID, req.UserID, req.ChargerID)
}

// refreshBusy flags the charger busy while no port is free right now and
// clears the flag once one is. The flag is informational.
func (s *Service) refreshBusy(ctx context.Context, tx ports.Repositories, charger *domain.Charger, now time.Time) error {
	if charger.Status == domain.ChargerStatusDisabled {
		return nil
	}
	avail, err := availability.Occupancy(ctx, tx, charger, now, now.Add(time.Minute), now, "")
	if err != nil {
		return err
	}

	next := domain.ChargerStatusActive
	if avail.AvailablePorts == 0 {
		next = domain.ChargerStatusBusy
	}
	if next == charger.Status {
		return nil
	}
	if err := tx.Chargers().UpdateStatus(ctx, charger.ID, next); err != nil {
		return domain.StorageFailure("update charger status", err)
	}
	charger.Status = next
	return nil
}

// RecordProgress applies a meter report. A report carrying a sequence at or
// below the last applied one is rejected as stale; a zero sequence is unordered
// and always applied. A cumulative reading below the previous one is taken as
// a meter reset and counted from zero.
func (s *Service) RecordProgress(ctx context.Context, id string, t domain.Telemetry) (*domain.ChargingSession, error) {
	if t.CumulativeKWh.IsNegative() {
		return nil, domain.Validation("cumulative energy must not be negative")
	}

	now := s.now()
	var (
		session *domain.ChargingSession
		delta   decimal.Decimal
	)
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		delta = decimal.Zero
		cs, err := s.lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		session = cs
		if cs.Status != domain.SessionStatusActive {
			return domain.InvalidState("session", id, cs.Status, "telemetry is accepted on active sessions only")
		}
		if t.Seq > 0 && t.Seq <= cs.TelemetrySeq {
			s.log.Debug("Stale telemetry rejected",
				zap.String("session_id", id),
				zap.Int64("seq", t.Seq),
				zap.Int64("last_seq", cs.TelemetrySeq),
			)
			return domain.InvalidState("session", id, cs.Status, "stale telemetry sequence")
		}

		delta = t.CumulativeKWh.Sub(cs.LastMeterReading)
		if delta.IsNegative() {
			s.log.Warn("Meter reset detected",
				zap.String("session_id", id),
				zap.String("previous_kwh", cs.LastMeterReading.String()),
				zap.String("reported_kwh", t.CumulativeKWh.String()),
			)
			delta = t.CumulativeKWh
		}

		cs.EnergyDelivered = cs.EnergyDelivered.Add(delta)
		cs.LastMeterReading = t.CumulativeKWh
		if t.Seq > 0 {
			cs.TelemetrySeq = t.Seq
		}
		cs.LastTelemetryAt = &now
		cs.PowerKW = t.PowerKW
		cs.VoltageV = t.VoltageV
		cs.CurrentA = t.CurrentA
		cs.TemperatureC = t.TemperatureC
		cs.BatteryPercent = t.BatteryPercent
		cs.UpdatedAt = now
		if err := tx.Sessions().Save(ctx, cs); err != nil {
			return domain.StorageFailure("save session", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if delta.IsPositive() {
		energy, _ := delta.Float64()
		telemetry.EnergyDeliveredTotal.Add(energy)
	}
	return session, nil
}

// Pause suspends billing time on an active session
func (s *Service) Pause(ctx context.Context, id string) (*domain.ChargingSession, error) {
	now := s.now()
	return s.update(ctx, id, func(cs *domain.ChargingSession) error {
		if cs.Status != domain.SessionStatusActive {
			return domain.InvalidState("session", id, cs.Status, "can only pause active sessions")
		}
		cs.Status = domain.SessionStatusPaused
		cs.PausedAt = &now
		cs.UpdatedAt = now
		return nil
	})
}

// Resume restarts billing time on a paused session
func (s *Service) Resume(ctx context.Context, id string) (*domain.ChargingSession, error) {
	now := s.now()
	return s.update(ctx, id, func(cs *domain.ChargingSession) error {
		if cs.Status != domain.SessionStatusPaused {
			return domain.InvalidState("session", id, cs.Status, "can only resume paused sessions")
		}
		closePause(cs, now)
		cs.Status = domain.SessionStatusActive
		cs.UpdatedAt = now
		return nil
	})
}

func (s *Service) update(ctx context.Context, id string, fn func(cs *domain.ChargingSession) error) (*domain.ChargingSession, error) {
	var session *domain.ChargingSession
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		cs, err := s.lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(cs); err != nil {
			return err
		}
		if err := tx.Sessions().Save(ctx, cs); err != nil {
			return domain.StorageFailure("save session", err)
		}
		session = cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Charging session updated", zap.String("session_id", id), zap.String("status", string(session.Status)))
	return session, nil
}

// Stop ends a session and bills it. Completing the session, debiting the
// wallet and completing the booking commit together or not at all. The
// debit may overdraw the wallet, which flags the session for collections.
func (s *Service) Stop(ctx context.Context, id string) (_ *domain.ChargingSession, err error) {
	ctx, span := tracer.Start(ctx, "session.Stop", trace.WithAttributes(attribute.String("session_id", id)))
	defer func() { endSpan(span, err) }()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var (
		session      *domain.ChargingSession
		booking      *domain.Booking
		balanceAfter decimal.Decimal
	)
	err = s.store.WithTx(ctx, func(tx ports.Repositories) error {
		booking = nil

		charger, err := tx.Chargers().FindByIDForUpdate(ctx, current.ChargerID)
		if err != nil {
			return domain.StorageFailure("lock charger", err)
		}
		if charger == nil {
			return domain.NotFound("charger", current.ChargerID)
		}

		cs, err := s.lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cs.Status.IsOpen() {
			return domain.InvalidState("session", id, cs.Status, "session already stopped")
		}

		closePause(cs, now)
		cs.EndTime = &now
		cs.IsPeakHour = s.config.Peak.Contains(now)
		cost := billing.ComputeCost(cs.EnergyDelivered, billing.Hours(cs.BilledDuration(now)), charger.PriceSchedule, cs.IsPeakHour)
		cs.Cost = &cost
		cs.Status = domain.SessionStatusCompleted
		cs.UpdatedAt = now

		if cost.IsPositive() {
			row, err := s.ledger.DebitTx(ctx, tx, domain.LedgerEntry{
				UserID:         cs.UserID,
				Amount:         cost,
				Reason:         domain.ReasonChargingSession,
				ReferenceID:    cs.ID,
				AllowOverdraft: true,
			})
			if err != nil {
				return err
			}
			cs.LedgerTxID = &row.ID
			cs.CollectionsFlag = row.BalanceAfter.IsNegative()
			balanceAfter = row.BalanceAfter
		}

		if err := tx.Sessions().Save(ctx, cs); err != nil {
			return domain.StorageFailure("save session", err)
		}

		if cs.BookingID != nil {
			b, err := tx.Bookings().FindByID(ctx, *cs.BookingID)
			if err != nil {
				return domain.StorageFailure("find booking", err)
			}
			if b != nil && b.Status == domain.BookingStatusActive {
				if booking, err = s.bookings.CompleteTx(ctx, tx, b.ID); err != nil {
					return err
				}
			}
		}

		if err := s.refreshBusy(ctx, tx, charger, now); err != nil {
			return err
		}
		session = cs
		return nil
	})
	if err != nil {
		s.log.Error("Failed to stop charging session", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}

	cost := *session.Cost
	billed, _ := cost.Float64()
	telemetry.ActiveChargingSessions.Dec()
	telemetry.BilledAmountTotal.Add(billed)

	s.notifier.Notify(ctx, sessionEvent(domain.EventSessionCompleted, session, now))
	if booking != nil {
		s.notifier.Notify(ctx, domain.Event{
			ID:         uuid.New().String(),
			Type:       domain.EventBookingCompleted,
			UserID:     booking.UserID,
			ChargerID:  booking.ChargerID,
			BookingID:  booking.ID,
			SessionID:  session.ID,
			OccurredAt: now,
		})
	}
	if session.CollectionsFlag {
		e := sessionEvent(domain.EventWalletOverdrawn, session, now)
		e.Amount = &balanceAfter
		s.notifier.Notify(ctx, e)
		s.log.Warn("Wallet overdrawn by charging session",
			zap.String("session_id", session.ID),
			zap.String("user_id", session.UserID),
			zap.String("balance_after", balanceAfter.StringFixed(2)),
		)
	}

	s.log.Info("Charging session completed",
		zap.String("session_id", session.ID),
		zap.String("energy_kwh", session.EnergyDelivered.String()),
		zap.Duration("billed_duration", session.BilledDuration(now)),
		zap.Bool("peak", session.IsPeakHour),
		zap.String("cost", cost.StringFixed(2)),
	)
	return session, nil
}

// Get retrieves a session by ID
func (s *Service) Get(ctx context.Context, id string) (*domain.ChargingSession, error) {
	cs, err := s.store.Sessions().FindByID(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("find session", err)
	}
	if cs == nil {
		return nil, domain.NotFound("session", id)
	}
	return cs, nil
}

// Active returns the user's open sessions
func (s *Service) Active(ctx context.Context, userID string) ([]domain.ChargingSession, error) {
	out, err := s.store.Sessions().FindOpenByUserID(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("find open sessions", err)
	}
	return out, nil
}

// History returns the user's sessions, most recent first
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]domain.ChargingSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.store.Sessions().FindHistoryByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, domain.StorageFailure("find session history", err)
	}
	return out, nil
}

func (s *Service) lockSession(ctx context.Context, tx ports.Repositories, id string) (*domain.ChargingSession, error) {
	cs, err := tx.Sessions().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("lock session", err)
	}
	if cs == nil {
		return nil, domain.NotFound("session", id)
	}
	return cs, nil
}

func closePause(cs *domain.ChargingSession, now time.Time) {
	if cs.PausedAt == nil {
		return
	}
	if now.After(*cs.PausedAt) {
		cs.PausedDuration += now.Sub(*cs.PausedAt)
	}
	cs.PausedAt = nil
}

func sessionEvent(t domain.EventType, cs *domain.ChargingSession, at time.Time) domain.Event {
	e := domain.Event{
		ID:         uuid.New().String(),
		Type:       t,
		UserID:     cs.UserID,
		ChargerID:  cs.ChargerID,
		SessionID:  cs.ID,
		StartTime:  &cs.StartTime,
		EndTime:    cs.EndTime,
		Amount:     cs.Cost,
		OccurredAt: at,
	}
	if cs.BookingID != nil {
		e.BookingID = *cs.BookingID
	}
	return e
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
