// Package pricing serves charger price schedules through a read-through cache.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

const keyPrefix = "pricing:"

// Provider implements ports.PricingProvider. Cache failures degrade to a
// store read and are never surfaced.
type Provider struct {
	chargers ports.ChargerRepository
	cache    ports.Cache
	ttl      time.Duration
	log      *zap.Logger
}

var _ ports.PricingProvider = (*Provider)(nil)

// NewProvider creates a new pricing provider
func NewProvider(chargers ports.ChargerRepository, cache ports.Cache, ttl time.Duration, log *zap.Logger) *Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{chargers: chargers, cache: cache, ttl: ttl, log: log}
}

// Schedule returns the charger's price schedule
func (p *Provider) Schedule(ctx context.Context, chargerID string) (domain.PriceSchedule, error) {
	key := keyPrefix + chargerID

	if raw, err := p.cache.Get(ctx, key); err == nil {
		var schedule domain.PriceSchedule
		if err := json.Unmarshal([]byte(raw), &schedule); err == nil {
			return schedule, nil
		}
		p.log.Warn("Discarding unreadable cached schedule", zap.String("charger_id", chargerID))
	} else if !errors.Is(err, ports.ErrCacheMiss) {
		p.log.Warn("Pricing cache read failed", zap.String("charger_id", chargerID), zap.Error(err))
	}

	charger, err := p.chargers.FindByID(ctx, chargerID)
	if err != nil {
		return domain.PriceSchedule{}, domain.StorageFailure("find charger", err)
	}
	if charger == nil {
		return domain.PriceSchedule{}, domain.NotFound("charger", chargerID)
	}

	if err := p.cache.Set(ctx, key, charger.PriceSchedule, p.ttl); err != nil {
		p.log.Warn("Pricing cache write failed", zap.String("charger_id", chargerID), zap.Error(err))
	}
	return charger.PriceSchedule, nil
}

// Invalidate drops the cached schedule, after a price change
func (p *Provider) Invalidate(ctx context.Context, chargerID string) error {
	return p.cache.Delete(ctx, keyPrefix+chargerID)
}
