package booking

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

var tracer = otel.Tracer("evcharging-rental/booking")

// ReasonPreempted is the cancellation reason of bookings displaced by an emergency
const ReasonPreempted = "preempted"

// Config holds booking policy
type Config struct {
	FullRefundNotice time.Duration
	HalfRefundNotice time.Duration
	EmergencyWindow  time.Duration
	MinDuration      time.Duration
	MaxDuration      time.Duration
	MaxAdvance       time.Duration
}

// DefaultConfig returns the default booking policy
func DefaultConfig() *Config {
	return &Config{
		FullRefundNotice: 2 * time.Hour,
		HalfRefundNotice: time.Hour,
		EmergencyWindow:  8 * time.Hour,
		MinDuration:      15 * time.Minute,
		MaxDuration:      24 * time.Hour,
		MaxAdvance:       30 * 24 * time.Hour,
	}
}

// Service implements the booking state machine
type Service struct {
	store    ports.UnitOfWork
	ledger   ports.LedgerPoster
	pricing  ports.PricingProvider
	notifier ports.Notifier
	config   *Config
	log      *zap.Logger
	now      func() time.Time
}

var _ ports.BookingService = (*Service)(nil)

// NewService creates a new booking service
func NewService(
	store ports.UnitOfWork,
	ledger ports.LedgerPoster,
	pricing ports.PricingProvider,
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
		ledger:   ledger,
		pricing:  pricing,
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

// Create books a window on a charger. Capacity is checked inside the
// inserting transaction with the charger row locked. An emergency request
// that finds the charger full preempts once and re-checks once.
func (s *Service) Create(ctx context.Context, req *ports.CreateBookingRequest) (_ *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.Create", trace.WithAttributes(
		attribute.String("charger_id", req.ChargerID),
		attribute.Bool("emergency", req.Emergency),
	))
	defer func() { endSpan(span, err) }()

	now := s.now()
	start, end := req.StartTime, req.EndTime
	if req.Emergency {
		// emergencies start no earlier than now; an explicit end is kept
		if start.IsZero() || start.Before(now) {
			start = now
		}
		if end.IsZero() {
			end = start.Add(s.config.EmergencyWindow)
		}
	}
	if err := s.validateRequest(req, start, end, now); err != nil {
		return nil, err
	}

	schedule, err := s.pricing.Schedule(ctx, req.ChargerID)
	if err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		ChargerID:       req.ChargerID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: int(end.Sub(start) / time.Minute),
		Amount:          billing.Quote(end.Sub(start), schedule),
		Prepaid:         req.Prepay,
		Priority:        domain.BookingPriorityNormal,
		Status:          domain.BookingStatusReserved,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Emergency {
		booking.Priority = domain.BookingPriorityEmergency
	} else if req.RequireConfirmation {
		booking.Status = domain.BookingStatusPending
	}

	var preempted []domain.Booking
	err = s.store.WithTx(ctx, func(tx ports.Repositories) error {
		preempted = nil

		charger, err := lockCharger(ctx, tx, req.ChargerID)
		if err != nil {
			return err
		}
		if !charger.Bookable() {
			return domain.InvalidState("charger", charger.ID, charger.Status, "charger is not accepting bookings")
		}

		avail, err := availability.Occupancy(ctx, tx, charger, start, end, now, "")
		if err != nil {
			return err
		}
		if !avail.Admissible() && req.Emergency {
			needed := avail.OccupiedPorts - avail.TotalPorts + 1
			preempted, err = s.preempt(ctx, tx, charger.ID, needed, start, end, now)
			if err != nil {
				return err
			}
			avail, err = availability.Occupancy(ctx, tx, charger, start, end, now, "")
			if err != nil {
				return err
			}
		}
		if !avail.Admissible() {
			telemetry.CapacityRejectionsTotal.WithLabelValues("create").Inc()
			return domain.CapacityExceeded(charger.ID, avail.OccupiedPorts, avail.TotalPorts)
		}

		if booking.Prepaid && booking.Amount.IsPositive() {
			if _, err := s.ledger.DebitTx(ctx, tx, domain.LedgerEntry{
				UserID:      booking.UserID,
				Amount:      booking.Amount,
				Reason:      domain.ReasonBookingPrepayment,
				ReferenceID: booking.ID,
			}); err != nil {
				return err
			}
		}

		if err := tx.Bookings().Save(ctx, booking); err != nil {
			return domain.StorageFailure("save booking", err)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Booking rejected",
			zap.String("user_id", req.UserID),
			zap.String("charger_id", req.ChargerID),
			zap.Bool("emergency", req.Emergency),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.BookingTransitionsTotal.WithLabelValues(string(booking.Status)).Inc()
	for i := range preempted {
		s.notifier.Notify(ctx, bookingEvent(domain.EventBookingPreempted, &preempted[i], now))
	}
	s.notifier.Notify(ctx, bookingEvent(domain.EventBookingCreated, booking, now))

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("user_id", booking.UserID),
		zap.String("charger_id", booking.ChargerID),
		zap.String("status", string(booking.Status)),
		zap.Time("start_time", booking.StartTime),
		zap.Time("end_time", booking.EndTime),
		zap.Int("preempted", len(preempted)),
	)

	return booking, nil
}

// validateRequest validates a booking request
func (s *Service) validateRequest(req *ports.CreateBookingRequest, start, end, now time.Time) error {
	if req.UserID == "" {
		return domain.Validation("user id is required")
	}
	if req.ChargerID == "" {
		return domain.Validation("charger id is required")
	}
	if err := availability.ValidateWindow(start, end); err != nil {
		return err
	}
	if req.Emergency && req.Prepay {
		return domain.Validation("emergency bookings are charged on completion")
	}
	if !req.Emergency && start.Before(now) {
		return domain.Validation("start time must be in the future")
	}
	return s.validateDuration(start, end, now)
}

func (s *Service) validateDuration(start, end, now time.Time) error {
	d := end.Sub(start)
	if s.config.MinDuration > 0 && d < s.config.MinDuration {
		return domain.Validation("minimum duration is %s", s.config.MinDuration)
	}
	if s.config.MaxDuration > 0 && d > s.config.MaxDuration {
		return domain.Validation("maximum duration is %s", s.config.MaxDuration)
	}
	if s.config.MaxAdvance > 0 && start.After(now.Add(s.config.MaxAdvance)) {
		return domain.Validation("cannot book more than %s in advance", s.config.MaxAdvance)
	}
	return nil
}

// Confirm moves a pending booking to confirmed. The booking starts holding
// a port here, so capacity is checked again.
func (s *Service) Confirm(ctx context.Context, id string) (*domain.Booking, error) {
	now := s.now()
	var booking *domain.Booking
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		b, charger, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingStatusPending {
			return domain.InvalidState("booking", id, b.Status, "can only confirm pending bookings")
		}

		avail, err := availability.Occupancy(ctx, tx, charger, b.StartTime, b.EndTime, now, b.ID)
		if err != nil {
			return err
		}
		if !avail.Admissible() {
			telemetry.CapacityRejectionsTotal.WithLabelValues("confirm").Inc()
			return domain.CapacityExceeded(charger.ID, avail.OccupiedPorts, avail.TotalPorts)
		}

		b.Status = domain.BookingStatusConfirmed
		b.ConfirmedAt = &now
		b.UpdatedAt = now
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return domain.StorageFailure("save booking", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.BookingTransitionsTotal.WithLabelValues(string(booking.Status)).Inc()
	s.notifier.Notify(ctx, bookingEvent(domain.EventBookingConfirmed, booking, now))
	s.log.Info("Booking confirmed", zap.String("booking_id", id))
	return booking, nil
}

// Cancel cancels a booking and settles its refund in the same transaction
func (s *Service) Cancel(ctx context.Context, id, reason string) (_ *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(attribute.String("booking_id", id)))
	defer func() { endSpan(span, err) }()

	now := s.now()
	var booking *domain.Booking
	err = s.store.WithTx(ctx, func(tx ports.Repositories) error {
		b, _, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.cancelInTx(ctx, tx, b, reason, now); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.BookingTransitionsTotal.WithLabelValues(string(booking.Status)).Inc()
	s.notifier.Notify(ctx, bookingEvent(domain.EventBookingCancelled, booking, now))

	refund := decimal.Zero
	if booking.RefundAmount != nil {
		refund = *booking.RefundAmount
	}
	s.log.Info("Booking cancelled",
		zap.String("booking_id", id),
		zap.String("reason", reason),
		zap.String("refund", refund.StringFixed(2)),
	)
	return booking, nil
}

// cancelInTx applies the cancellation and refund policy to a locked booking.
// Refunds apply to prepaid normal bookings only and are settled at most once.
func (s *Service) cancelInTx(ctx context.Context, tx ports.Repositories, b *domain.Booking, reason string, now time.Time) error {
	if !b.CanBeCancelled() {
		return domain.InvalidState("booking", b.ID, b.Status, "booking cannot be cancelled")
	}

	if b.Prepaid && !b.IsEmergency() && !b.Refunded() {
		refund := billing.Refund(b.Amount, b.StartTime.Sub(now), s.config.FullRefundNotice, s.config.HalfRefundNotice)
		if refund.IsPositive() {
			if _, err := s.ledger.CreditTx(ctx, tx, domain.LedgerEntry{
				UserID:      b.UserID,
				Amount:      refund,
				Reason:      domain.ReasonBookingRefund,
				ReferenceID: b.ID,
			}); err != nil {
				return err
			}
		}
		b.RefundAmount = &refund
	}

	b.Status = domain.BookingStatusCancelled
	b.CancellationReason = reason
	b.CancelledAt = &now
	b.UpdatedAt = now
	if err := tx.Bookings().Save(ctx, b); err != nil {
		return domain.StorageFailure("save booking", err)
	}
	return nil
}

// Reschedule moves a booking to a new window if the charger has room for it,
// not counting the booking itself. On conflict nothing changes.
func (s *Service) Reschedule(ctx context.Context, id string, start, end time.Time) (_ *domain.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(attribute.String("booking_id", id)))
	defer func() { endSpan(span, err) }()

	now := s.now()
	if err := availability.ValidateWindow(start, end); err != nil {
		return nil, err
	}
	if start.Before(now) {
		return nil, domain.Validation("start time must be in the future")
	}
	if err := s.validateDuration(start, end, now); err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err = s.store.WithTx(ctx, func(tx ports.Repositories) error {
		b, charger, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return domain.InvalidState("booking", id, b.Status, "cannot reschedule a finished booking")
		}

		avail, err := availability.Occupancy(ctx, tx, charger, start, end, now, b.ID)
		if err != nil {
			return err
		}
		if !avail.Admissible() {
			telemetry.CapacityRejectionsTotal.WithLabelValues("reschedule").Inc()
			return domain.CapacityExceeded(charger.ID, avail.OccupiedPorts, avail.TotalPorts)
		}

		if !b.Prepaid {
			b.Amount = billing.Quote(end.Sub(start), charger.PriceSchedule)
		}
		b.StartTime = start
		b.EndTime = end
		b.DurationMinutes = int(end.Sub(start) / time.Minute)
		b.RescheduleCount++
		b.RescheduledAt = &now
		b.UpdatedAt = now
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return domain.StorageFailure("save booking", err)
		}
		if b.Status == domain.BookingStatusActive {
			if err := extendHold(ctx, tx, b); err != nil {
				return err
			}
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, bookingEvent(domain.EventBookingRescheduled, booking, now))
	s.log.Info("Booking rescheduled",
		zap.String("booking_id", id),
		zap.Time("start_time", start),
		zap.Time("end_time", end),
		zap.Int("reschedule_count", booking.RescheduleCount),
	)
	return booking, nil
}

// Complete marks an active booking completed. Session stop normally drives this.
func (s *Service) Complete(ctx context.Context, id string) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		var err error
		booking, err = s.CompleteTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Booking completed", zap.String("booking_id", id))
	return booking, nil
}

// CompleteTx moves an active booking to completed inside the caller's transaction
func (s *Service) CompleteTx(ctx context.Context, tx ports.Repositories, id string) (*domain.Booking, error) {
	b, err := tx.Bookings().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("find booking", err)
	}
	if b == nil {
		return nil, domain.NotFound("booking", id)
	}
	if b.Status != domain.BookingStatusActive {
		return nil, domain.InvalidState("booking", id, b.Status, "can only complete active bookings")
	}

	now := s.now()
	b.Status = domain.BookingStatusCompleted
	b.CompletedAt = &now
	b.UpdatedAt = now
	if err := tx.Bookings().Save(ctx, b); err != nil {
		return nil, domain.StorageFailure("save booking", err)
	}
	telemetry.BookingTransitionsTotal.WithLabelValues(string(b.Status)).Inc()
	return b, nil
}

// ActivateTx moves a reserved or confirmed booking to active when charging
// starts on it. The caller must already hold the charger lock.
func (s *Service) ActivateTx(ctx context.Context, tx ports.Repositories, id, userID, chargerID string) (*domain.Booking, error) {
	b, err := tx.Bookings().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("find booking", err)
	}
	if b == nil {
		return nil, domain.NotFound("booking", id)
	}
	if b.UserID != userID {
		return nil, domain.Validation("booking %s does not belong to user %s", id, userID)
	}
	if b.ChargerID != chargerID {
		return nil, domain.Validation("booking %s is for charger %s", id, b.ChargerID)
	}

	switch b.Status {
	case domain.BookingStatusActive:
		return b, nil
	case domain.BookingStatusReserved, domain.BookingStatusConfirmed:
	default:
		return nil, domain.InvalidState("booking", id, b.Status, "booking cannot start charging")
	}

	b.Status = domain.BookingStatusActive
	b.UpdatedAt = s.now()
	if err := tx.Bookings().Save(ctx, b); err != nil {
		return nil, domain.StorageFailure("save booking", err)
	}
	telemetry.BookingTransitionsTotal.WithLabelValues(string(b.Status)).Inc()
	return b, nil
}

// Get retrieves a booking by ID
func (s *Service) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := s.store.Bookings().FindByID(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("find booking", err)
	}
	if b == nil {
		return nil, domain.NotFound("booking", id)
	}
	return b, nil
}

// ListByUser retrieves a user's bookings, newest first
func (s *Service) ListByUser(ctx context.Context, userID string, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.store.Bookings().FindByUserID(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, domain.StorageFailure("find bookings", err)
	}
	return out, nil
}

// ListByCharger retrieves bookings on a charger that overlap [from, to)
func (s *Service) ListByCharger(ctx context.Context, chargerID string, from, to time.Time) ([]domain.Booking, error) {
	if err := availability.ValidateWindow(from, to); err != nil {
		return nil, err
	}
	out, err := s.store.Bookings().FindByChargerID(ctx, chargerID, from, to)
	if err != nil {
		return nil, domain.StorageFailure("find bookings", err)
	}
	return out, nil
}

func lockCharger(ctx context.Context, tx ports.Repositories, id string) (*domain.Charger, error) {
	charger, err := tx.Chargers().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("lock charger", err)
	}
	if charger == nil {
		return nil, domain.NotFound("charger", id)
	}
	return charger, nil
}

// lockBooking locks the booking's charger and then the booking. The charger
// is always the first lock taken in a unit of work.
func lockBooking(ctx context.Context, tx ports.Repositories, id string) (*domain.Booking, *domain.Charger, error) {
	b, err := tx.Bookings().FindByID(ctx, id)
	if err != nil {
		return nil, nil, domain.StorageFailure("find booking", err)
	}
	if b == nil {
		return nil, nil, domain.NotFound("booking", id)
	}
	charger, err := lockCharger(ctx, tx, b.ChargerID)
	if err != nil {
		return nil, nil, err
	}
	b, err = tx.Bookings().FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, nil, domain.StorageFailure("lock booking", err)
	}
	if b == nil {
		return nil, nil, domain.NotFound("booking", id)
	}
	return b, charger, nil
}

func bookingEvent(t domain.EventType, b *domain.Booking, at time.Time) domain.Event {
	e := domain.Event{
		ID:         uuid.New().String(),
		Type:       t,
		UserID:     b.UserID,
		ChargerID:  b.ChargerID,
		BookingID:  b.ID,
		Reason:     b.CancellationReason,
		StartTime:  &b.StartTime,
		EndTime:    &b.EndTime,
		OccurredAt: at,
	}
	switch {
	case b.RefundAmount != nil:
		e.Amount = b.RefundAmount
	case t == domain.EventBookingCreated:
		amount := b.Amount
		e.Amount = &amount
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

// extendHold moves the open session of an active booking to the booking's new end.
func extendHold(ctx context.Context, tx ports.Repositories, b *domain.Booking) error {
	cs, err := tx.Sessions().FindOpenByBookingID(ctx, b.ID)
	if err != nil {
		return domain.StorageFailure("find booking session", err)
	}
	if cs == nil {
		return nil
	}
	end := b.EndTime
	cs.HoldUntil = &end
	cs.UpdatedAt = b.UpdatedAt
	if err := tx.Sessions().Save(ctx, cs); err != nil {
		return domain.StorageFailure("save session", err)
	}
	return nil
}
