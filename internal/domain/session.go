package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus represents the status of a charging session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
)

// OpenSessionStatuses are the statuses of a session still holding a port
var OpenSessionStatuses = []SessionStatus{SessionStatusActive, SessionStatusPaused}

// IsOpen reports whether the session has not been stopped yet
func (s SessionStatus) IsOpen() bool {
	return s == SessionStatusActive || s == SessionStatusPaused
}

// ChargingSession is a metered charge on a charger, started from a booking or as a walk-up
type ChargingSession struct {
	ID        string  `json:"id" gorm:"primaryKey;type:uuid"`
	BookingID *string `json:"booking_id,omitempty" gorm:"type:uuid;index"`
	ChargerID string  `json:"charger_id" gorm:"type:uuid;index;not null"`
	UserID    string  `json:"user_id" gorm:"type:uuid;index;not null"`

	StartTime time.Time  `json:"start_time" gorm:"type:timestamptz;not null"`
	EndTime   *time.Time `json:"end_time,omitempty" gorm:"type:timestamptz"`
	// HoldUntil is the least the session is assumed to hold its port: the
	// walk-up hold, or the booking's end. An open session past it still holds.
	HoldUntil *time.Time `json:"hold_until,omitempty" gorm:"type:timestamptz"`

	EnergyDelivered  decimal.Decimal `json:"energy_delivered_kwh" gorm:"type:numeric(14,4);not null;default:0"`
	LastMeterReading decimal.Decimal `json:"last_meter_reading_kwh" gorm:"type:numeric(14,4);not null;default:0"`
	TelemetrySeq     int64           `json:"telemetry_seq" gorm:"not null;default:0"`
	LastTelemetryAt  *time.Time      `json:"last_telemetry_at,omitempty" gorm:"type:timestamptz"`

	PausedAt       *time.Time    `json:"paused_at,omitempty" gorm:"type:timestamptz"`
	PausedDuration time.Duration `json:"paused_duration" gorm:"not null;default:0"`

	// Instantaneous readings, kept for observability only
	PowerKW        float64 `json:"power_kw"`
	VoltageV       float64 `json:"voltage_v"`
	CurrentA       float64 `json:"current_a"`
	TemperatureC   float64 `json:"temperature_c"`
	BatteryPercent int     `json:"battery_percent"`

	Status          SessionStatus    `json:"status" gorm:"type:varchar(16);index;not null"`
	Cost            *decimal.Decimal `json:"cost,omitempty" gorm:"type:numeric(14,2)"`
	IsPeakHour      bool             `json:"is_peak_hour"`
	CollectionsFlag bool             `json:"collections_flag" gorm:"not null;default:false"`
	LedgerTxID      *string          `json:"ledger_tx_id,omitempty" gorm:"type:uuid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChargingSession) TableName() string { return "charging_sessions" }

// IsWalkUp reports whether the session was started without a booking
func (s *ChargingSession) IsWalkUp() bool {
	return s.BookingID == nil
}

// HoldsPortAt reports whether the open session occupies a port somewhere in
// [start, end) as of now. A session still open past HoldUntil has no known
// end and holds its port until it stops.
func (s *ChargingSession) HoldsPortAt(start, end, now time.Time) bool {
	if !s.Status.IsOpen() || !s.StartTime.Before(end) {
		return false
	}
	return s.HoldUntil == nil || s.HoldUntil.After(start) || !s.HoldUntil.After(now)
}

// BilledDuration is wall time since start minus paused time, as of now.
// An open pause is counted as paused.
func (s *ChargingSession) BilledDuration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	paused := s.PausedDuration
	if s.PausedAt != nil && end.After(*s.PausedAt) {
		paused += end.Sub(*s.PausedAt)
	}
	d := end.Sub(s.StartTime) - paused
	if d < 0 {
		return 0
	}
	return d
}

// Telemetry is one meter report for a session.
// CumulativeKWh is the meter's running total; Seq orders reports per session.
type Telemetry struct {
	Seq            int64           `json:"seq"`
	CumulativeKWh  decimal.Decimal `json:"cumulative_kwh"`
	PowerKW        float64         `json:"power_kw"`
	VoltageV       float64         `json:"voltage_v"`
	CurrentA       float64         `json:"current_a"`
	TemperatureC   float64         `json:"temperature_c"`
	BatteryPercent int             `json:"battery_percent"`
}

// SessionStats aggregates completed sessions for a user or charger
type SessionStats struct {
	Sessions       int             `json:"sessions"`
	EnergyKWh      decimal.Decimal `json:"energy_kwh"`
	ChargedMinutes int64           `json:"charged_minutes"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	PeakSessions   int             `json:"peak_sessions"`
}
