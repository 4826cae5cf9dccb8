// Package billing turns metered usage into money. Everything here is pure.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// MoneyPlaces is the scale every billed amount is rounded to
const MoneyPlaces = 2

var hourNanos = decimal.NewFromInt(int64(time.Hour))

// PeakWindow is a local-time window [StartHour:00, EndHour:00)
type PeakWindow struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// DefaultPeakWindow returns the 18:00 to 21:00 window in loc
func DefaultPeakWindow(loc *time.Location) PeakWindow {
	if loc == nil {
		loc = time.Local
	}
	return PeakWindow{StartHour: 18, EndHour: 21, Location: loc}
}

// Contains reports whether t falls inside the window, evaluated in the window's timezone
func (w PeakWindow) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	hour := t.In(loc).Hour()
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// window wraps midnight
	return hour >= w.StartHour || hour < w.EndHour
}

// Breakdown itemises a computed charge
type Breakdown struct {
	EnergyKWh     decimal.Decimal `json:"energy_kwh"`
	DurationHours decimal.Decimal `json:"duration_hours"`
	EnergyCharge  decimal.Decimal `json:"energy_charge"`
	TimeCharge    decimal.Decimal `json:"time_charge"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	IsPeakHour    bool            `json:"is_peak_hour"`
	Total         decimal.Decimal `json:"total"`
}

// ComputeCost returns energy*perEnergyRate + hours*perHourRate, multiplied as a
// whole by the peak multiplier when isPeak, rounded half-up to cents once.
func ComputeCost(energyKWh, durationHours decimal.Decimal, schedule domain.PriceSchedule, isPeak bool) decimal.Decimal {
	return Compute(energyKWh, durationHours, schedule, isPeak).Total
}

// Compute is ComputeCost with the unrounded components kept
func Compute(energyKWh, durationHours decimal.Decimal, schedule domain.PriceSchedule, isPeak bool) Breakdown {
	if energyKWh.IsNegative() {
		energyKWh = decimal.Zero
	}
	if durationHours.IsNegative() {
		durationHours = decimal.Zero
	}

	energyCharge := energyKWh.Mul(schedule.PerEnergyRate)
	timeCharge := durationHours.Mul(schedule.PerHourRate)
	amount := energyCharge.Add(timeCharge)

	multiplier := decimal.NewFromInt(1)
	if isPeak && schedule.HasPeakPricing() {
		multiplier = schedule.PeakMultiplier
		amount = amount.Mul(multiplier)
	}

	return Breakdown{
		EnergyKWh:     energyKWh,
		DurationHours: durationHours,
		EnergyCharge:  energyCharge,
		TimeCharge:    timeCharge,
		Multiplier:    multiplier,
		IsPeakHour:    isPeak,
		Total:         amount.Round(MoneyPlaces),
	}
}

// Quote prices a booking window from the hourly rate alone
func Quote(window time.Duration, schedule domain.PriceSchedule) decimal.Decimal {
	return ComputeCost(decimal.Zero, Hours(window), schedule, false)
}

// Hours converts a duration to fractional hours without float rounding
func Hours(d time.Duration) decimal.Decimal {
	if d <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d)).Div(hourNanos)
}

// Refund returns the share of amount refundable for a cancellation made
// `notice` ahead of the booking start: all of it at fullNotice or more,
// half at halfNotice or more, nothing after that.
func Refund(amount decimal.Decimal, notice, fullNotice, halfNotice time.Duration) decimal.Decimal {
	switch {
	case notice >= fullNotice:
		return amount.Round(MoneyPlaces)
	case notice >= halfNotice:
		return amount.Div(decimal.NewFromInt(2)).Round(MoneyPlaces)
	default:
		return decimal.Zero
	}
}
