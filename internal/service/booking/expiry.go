package booking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Expire moves a pending booking to expired. A booking that left pending
// since it was listed is skipped and reported false. Prepaid amounts are
// returned in full since the booking never held a port.
func (s *Service) Expire(ctx context.Context, id string) (bool, error) {
	now := s.now()
	var expired *domain.Booking
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		b, err := tx.Bookings().FindByIDForUpdate(ctx, id)
		if err != nil {
			return domain.StorageFailure("lock booking", err)
		}
		if b == nil || b.Status != domain.BookingStatusPending {
			return nil
		}

		if b.Prepaid && !b.Refunded() {
			refund := b.Amount
			if refund.IsPositive() {
				if _, err := s.ledger.CreditTx(ctx, tx, domain.LedgerEntry{
					UserID:      b.UserID,
					Amount:      refund,
					Reason:      domain.ReasonBookingRefund,
					ReferenceID: b.ID,
					Description: "unconfirmed booking expired",
				}); err != nil {
					return err
				}
			}
			b.RefundAmount = &refund
		}

		b.Status = domain.BookingStatusExpired
		b.ExpiredAt = &now
		b.UpdatedAt = now
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return domain.StorageFailure("save booking", err)
		}
		expired = b
		return nil
	})
	if err != nil || expired == nil {
		return false, err
	}

	telemetry.BookingTransitionsTotal.WithLabelValues(string(expired.Status)).Inc()
	s.notifier.Notify(ctx, bookingEvent(domain.EventBookingExpired, expired, now))
	s.log.Info("Booking expired", zap.String("booking_id", id))
	return true, nil
}

// CompleteOverrun completes an occupying booking whose window has ended.
// Bookings with an open session are left for session stop, which bills them.
func (s *Service) CompleteOverrun(ctx context.Context, id string) (bool, error) {
	now := s.now()
	var completed *domain.Booking
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		b, err := tx.Bookings().FindByIDForUpdate(ctx, id)
		if err != nil {
			return domain.StorageFailure("lock booking", err)
		}
		if b == nil || !b.Status.IsOccupying() || !b.EndTime.Before(now) {
			return nil
		}

		open, err := tx.Sessions().FindOpenByBookingID(ctx, id)
		if err != nil {
			return domain.StorageFailure("find open session", err)
		}
		if open != nil {
			return nil
		}

		b.Status = domain.BookingStatusCompleted
		b.CompletedAt = &now
		b.UpdatedAt = now
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return domain.StorageFailure("save booking", err)
		}
		completed = b
		return nil
	})
	if err != nil || completed == nil {
		return false, err
	}

	telemetry.BookingTransitionsTotal.WithLabelValues(string(completed.Status)).Inc()
	s.notifier.Notify(ctx, bookingEvent(domain.EventBookingCompleted, completed, now))
	s.log.Info("Overrun booking completed",
		zap.String("booking_id", id),
		zap.Time("end_time", completed.EndTime),
	)
	return true, nil
}

// PendingBefore lists pending bookings created before cutoff
func (s *Service) PendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	out, err := s.store.Bookings().FindPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, domain.StorageFailure("find pending bookings", err)
	}
	return out, nil
}

// Overrun lists occupying bookings whose window ended before now
func (s *Service) Overrun(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	out, err := s.store.Bookings().FindOverrun(ctx, now)
	if err != nil {
		return nil, domain.StorageFailure("find overrun bookings", err)
	}
	return out, nil
}
