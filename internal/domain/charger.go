package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargerStatus represents the operational status of a charger
type ChargerStatus string

const (
	ChargerStatusActive   ChargerStatus = "active"
	ChargerStatusBusy     ChargerStatus = "busy"
	ChargerStatusDisabled ChargerStatus = "disabled"
)

// PriceSchedule holds the rates a charger bills with.
// A zero PeakMultiplier means the charger has no peak pricing.
type PriceSchedule struct {
	PerHourRate    decimal.Decimal `json:"per_hour_rate" gorm:"column:per_hour_rate;type:numeric(12,4);not null;default:0"`
	PerEnergyRate  decimal.Decimal `json:"per_energy_rate" gorm:"column:per_energy_rate;type:numeric(12,4);not null;default:0"`
	PeakMultiplier decimal.Decimal `json:"peak_multiplier" gorm:"column:peak_multiplier;type:numeric(6,3);not null;default:0"`
}

// HasPeakPricing reports whether a peak multiplier is configured
func (p PriceSchedule) HasPeakPricing() bool {
	return p.PeakMultiplier.GreaterThan(decimal.Zero)
}

// Charger is a rentable charging station with one or more ports
type Charger struct {
	ID            string        `json:"id" gorm:"primaryKey;type:uuid"`
	OwnerID       string        `json:"owner_id" gorm:"type:uuid;index;not null"`
	Name          string        `json:"name"`
	Address       string        `json:"address,omitempty"`
	TotalPorts    int           `json:"total_ports" gorm:"not null;default:1"`
	PowerKW       float64       `json:"power_kw,omitempty"`
	ConnectorType string        `json:"connector_type,omitempty"`
	PriceSchedule PriceSchedule `json:"price_schedule" gorm:"embedded"`
	Status        ChargerStatus `json:"status" gorm:"type:varchar(16);not null;default:active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (Charger) TableName() string { return "chargers" }

// Bookable reports whether new bookings or sessions may be placed on the charger.
// Busy is informational only and never blocks admission.
func (c *Charger) Bookable() bool {
	return c.Status != ChargerStatusDisabled
}

// Availability is the occupancy of a charger over a window
type Availability struct {
	ChargerID      string    `json:"charger_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	TotalPorts     int       `json:"total_ports"`
	OccupiedPorts  int       `json:"occupied_ports"`
	AvailablePorts int       `json:"available_ports"`
}

// Admissible reports whether one more occupant fits
func (a Availability) Admissible() bool {
	return a.OccupiedPorts < a.TotalPorts
}

// NewAvailability derives the free port count, never below zero
func NewAvailability(chargerID string, start, end time.Time, total, occupied int) Availability {
	free := total - occupied
	if free < 0 {
		free = 0
	}
	return Availability{
		ChargerID:      chargerID,
		Start:          start,
		End:            end,
		TotalPorts:     total,
		OccupiedPorts:  occupied,
		AvailablePorts: free,
	}
}

// TimeSlot represents one slot of a charger's daily grid
type TimeSlot struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	AvailablePorts int       `json:"available_ports"`
	Available      bool      `json:"available"`
}
