// Package sweep runs the periodic booking maintenance jobs.
package sweep

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
)

// Bookings is the booking surface the sweeper drives. Each transition
// re-checks its guard under lock and reports false when it no longer applies.
type Bookings interface {
	PendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Booking, error)
	Overrun(ctx context.Context, now time.Time) ([]domain.Booking, error)
	Expire(ctx context.Context, id string) (bool, error)
	CompleteOverrun(ctx context.Context, id string) (bool, error)
}

// Cleaner drops stale state, such as rate limit windows
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Config holds sweep schedule and policy
type Config struct {
	Interval        time.Duration
	PendingGrace    time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the default sweep schedule
func DefaultConfig() *Config {
	return &Config{
		Interval:        2 * time.Minute,
		PendingGrace:    10 * time.Minute,
		CleanupInterval: 30 * time.Minute,
	}
}

// Sweeper expires unconfirmed bookings and completes overrun ones
type Sweeper struct {
	bookings Bookings
	cleaners []Cleaner
	config   *Config
	log      *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(bookings Bookings, config *Config, log *zap.Logger, cleaners ...Cleaner) *Sweeper {
	if config == nil {
		config = DefaultConfig()
	}
	return &Sweeper{
		bookings: bookings,
		cleaners: cleaners,
		config:   config,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// AutoExpireUnconfirmed expires bookings left pending longer than the grace period
func (s *Sweeper) AutoExpireUnconfirmed(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.PendingGrace)
	pending, err := s.bookings.PendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, "expire_unconfirmed", pending, s.bookings.Expire)
}

// AutoCompleteOverrun completes occupying bookings whose window has passed
func (s *Sweeper) AutoCompleteOverrun(ctx context.Context) (int, error) {
	overrun, err := s.bookings.Overrun(ctx, s.now())
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, "complete_overrun", overrun, s.bookings.CompleteOverrun)
}

func (s *Sweeper) apply(ctx context.Context, job string, bookings []domain.Booking, fn func(context.Context, string) (bool, error)) (int, error) {
	var errs []error
	n := 0
	for i := range bookings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		changed, err := fn(ctx, bookings[i].ID)
		if err != nil {
			s.log.Error("Sweep transition failed",
				zap.String("job", job),
				zap.String("booking_id", bookings[i].ID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if changed {
			n++
			telemetry.SweepTransitionsTotal.WithLabelValues(job).Inc()
		}
	}
	if n > 0 {
		s.log.Info("Sweep completed", zap.String("job", job), zap.Int("transitioned", n))
	}
	return n, errors.Join(errs...)
}

// RunOnce runs both booking jobs
func (s *Sweeper) RunOnce(ctx context.Context) {
	if _, err := s.AutoExpireUnconfirmed(ctx); err != nil {
		s.log.Warn("Expire sweep finished with errors", zap.Error(err))
	}
	if _, err := s.AutoCompleteOverrun(ctx); err != nil {
		s.log.Warn("Overrun sweep finished with errors", zap.Error(err))
	}
}

// Start runs the jobs on their intervals until ctx is done
func (s *Sweeper) Start(ctx context.Context) {
	sweepTicker := time.NewTicker(s.config.Interval)
	defer sweepTicker.Stop()

	cleanupInterval := s.config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 30 * time.Minute
	}
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	s.log.Info("Booking sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("pending_grace", s.config.PendingGrace),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Booking sweeper stopped")
			return
		case <-sweepTicker.C:
			s.RunOnce(ctx)
		case <-cleanupTicker.C:
			for _, c := range s.cleaners {
				if err := c.Cleanup(ctx); err != nil {
					s.log.Warn("Cleanup failed", zap.Error(err))
				}
			}
		}
	}
}
