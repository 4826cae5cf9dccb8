package booking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Preempt cancels up to needed reserved normal-priority bookings overlapping
// [start, end) on the charger, oldest first, inside the caller's transaction.
// Confirmed and active bookings are never displaced. It returns how many
// were cancelled, which may be fewer than needed.
func (s *Service) Preempt(ctx context.Context, tx ports.Repositories, chargerID string, needed int, start, end time.Time) (int, error) {
	out, err := s.preempt(ctx, tx, chargerID, needed, start, end, s.now())
	return len(out), err
}

func (s *Service) preempt(ctx context.Context, tx ports.Repositories, chargerID string, needed int, start, end, now time.Time) ([]domain.Booking, error) {
	if needed <= 0 {
		return nil, nil
	}

	victims, err := tx.Bookings().FindPreemptible(ctx, chargerID, start, end, needed)
	if err != nil {
		return nil, domain.StorageFailure("find preemptible bookings", err)
	}

	out := make([]domain.Booking, 0, len(victims))
	for i := range victims {
		b := &victims[i]
		if err := s.cancelInTx(ctx, tx, b, ReasonPreempted, now); err != nil {
			return nil, err
		}
		out = append(out, *b)

		telemetry.PreemptionsTotal.Inc()
		s.log.Warn("Booking preempted by emergency",
			zap.String("booking_id", b.ID),
			zap.String("user_id", b.UserID),
			zap.String("charger_id", chargerID),
		)
	}
	return out, nil
}
