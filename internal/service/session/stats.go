package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/service/availability"
)

// UserStats totals a user's completed sessions
func (s *Service) UserStats(ctx context.Context, userID string) (*domain.SessionStats, error) {
	if userID == "" {
		return nil, domain.Validation("user id is required")
	}
	sessions, err := s.store.Sessions().FindCompletedByUserID(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("find completed sessions", err)
	}
	return aggregate(sessions), nil
}

// ChargerStats totals a charger's completed sessions that started in [from, to)
func (s *Service) ChargerStats(ctx context.Context, chargerID string, from, to time.Time) (*domain.SessionStats, error) {
	if err := availability.ValidateWindow(from, to); err != nil {
		return nil, err
	}
	sessions, err := s.store.Sessions().FindCompletedByChargerID(ctx, chargerID, from, to)
	if err != nil {
		return nil, domain.StorageFailure("find completed sessions", err)
	}
	return aggregate(sessions), nil
}

func aggregate(sessions []domain.ChargingSession) *domain.SessionStats {
	stats := &domain.SessionStats{
		EnergyKWh: decimal.Zero,
		TotalCost: decimal.Zero,
	}
	for i := range sessions {
		cs := &sessions[i]
		stats.Sessions++
		stats.EnergyKWh = stats.EnergyKWh.Add(cs.EnergyDelivered)
		if cs.EndTime != nil {
			stats.ChargedMinutes += int64(cs.BilledDuration(*cs.EndTime) / time.Minute)
		}
		if cs.Cost != nil {
			stats.TotalCost = stats.TotalCost.Add(*cs.Cost)
		}
		if cs.IsPeakHour {
			stats.PeakSessions++
		}
	}
	return stats
}
