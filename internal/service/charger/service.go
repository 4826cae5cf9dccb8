package charger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Service registers chargers and manages their status and rates
type Service struct {
	store   ports.UnitOfWork
	pricing ports.PricingProvider
	log     *zap.Logger
	now     func() time.Time
}

var _ ports.ChargerService = (*Service)(nil)

// NewService creates a new charger service
func NewService(store ports.UnitOfWork, pricing ports.PricingProvider, log *zap.Logger) *Service {
	return &Service{store: store, pricing: pricing, log: log, now: time.Now}
}

// Register adds a charger. New chargers start active.
func (s *Service) Register(ctx context.Context, c *domain.Charger) (*domain.Charger, error) {
	if c.OwnerID == "" {
		return nil, domain.Validation("owner id is required")
	}
	if err := validateCharger(c); err != nil {
		return nil, err
	}

	now := s.now()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.ChargerStatusActive
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.store.Chargers().Save(ctx, c); err != nil {
		return nil, domain.StorageFailure("save charger", err)
	}

	s.log.Info("Charger registered",
		zap.String("charger_id", c.ID),
		zap.String("owner_id", c.OwnerID),
		zap.Int("total_ports", c.TotalPorts),
	)
	return c, nil
}

// Get retrieves a charger by ID
func (s *Service) Get(ctx context.Context, id string) (*domain.Charger, error) {
	c, err := s.store.Chargers().FindByID(ctx, id)
	if err != nil {
		return nil, domain.StorageFailure("find charger", err)
	}
	if c == nil {
		return nil, domain.NotFound("charger", id)
	}
	return c, nil
}

// SetStatus changes a charger's operational status. Disabling stops new
// admissions; existing bookings and sessions are left alone.
func (s *Service) SetStatus(ctx context.Context, id string, status domain.ChargerStatus) (*domain.Charger, error) {
	switch status {
	case domain.ChargerStatusActive, domain.ChargerStatusBusy, domain.ChargerStatusDisabled:
	default:
		return nil, domain.Validation("unknown charger status %q", status)
	}

	var out *domain.Charger
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		c, err := tx.Chargers().FindByIDForUpdate(ctx, id)
		if err != nil {
			return domain.StorageFailure("lock charger", err)
		}
		if c == nil {
			return domain.NotFound("charger", id)
		}
		if err := tx.Chargers().UpdateStatus(ctx, id, status); err != nil {
			return domain.StorageFailure("update charger status", err)
		}
		c.Status = status
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Charger status changed", zap.String("charger_id", id), zap.String("status", string(status)))
	return out, nil
}

// UpdatePricing replaces a charger's rates. Existing booking quotes keep their amounts.
func (s *Service) UpdatePricing(ctx context.Context, id string, schedule domain.PriceSchedule) (*domain.Charger, error) {
	var out *domain.Charger
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		c, err := tx.Chargers().FindByIDForUpdate(ctx, id)
		if err != nil {
			return domain.StorageFailure("lock charger", err)
		}
		if c == nil {
			return domain.NotFound("charger", id)
		}
		c.PriceSchedule = schedule
		if err := validateCharger(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := tx.Chargers().Save(ctx, c); err != nil {
			return domain.StorageFailure("save charger", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.pricing.Invalidate(ctx, id); err != nil {
		s.log.Warn("Failed to invalidate cached pricing", zap.String("charger_id", id), zap.Error(err))
	}
	return out, nil
}

func validateCharger(c *domain.Charger) error {
	if c.TotalPorts < 1 {
		return domain.Validation("total ports must be at least 1")
	}
	p := c.PriceSchedule
	if p.PerHourRate.IsNegative() || p.PerEnergyRate.IsNegative() {
		return domain.Validation("rates must not be negative")
	}
	if p.PeakMultiplier.IsNegative() {
		return domain.Validation("peak multiplier must not be negative")
	}
	return nil
}
