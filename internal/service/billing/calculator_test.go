package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

func schedule(perKWh, perHour, peak string) domain.PriceSchedule {
	return domain.PriceSchedule{
		PerEnergyRate:  decimal.RequireFromString(perKWh),
		PerHourRate:    decimal.RequireFromString(perHour),
		PeakMultiplier: decimal.RequireFromString(peak),
	}
}

func TestComputeCost_OffPeak(t *testing.T) {
	cost := ComputeCost(decimal.NewFromInt(10), decimal.NewFromInt(2), schedule("0.30", "1.00", "1.5"), false)

	assert.Equal(t, "5.00", cost.StringFixed(2))
}

func TestComputeCost_PeakMultipliesWholeAmount(t *testing.T) {
	cost := ComputeCost(decimal.NewFromInt(10), decimal.NewFromInt(2), schedule("0.30", "1.00", "1.5"), true)

	assert.Equal(t, "7.50", cost.StringFixed(2))
}

func TestComputeCost_PeakWithoutMultiplier(t *testing.T) {
	cost := ComputeCost(decimal.NewFromInt(10), decimal.NewFromInt(2), schedule("0.30", "1.00", "0"), true)

	assert.Equal(t, "5.00", cost.StringFixed(2))
}

func TestComputeCost_RoundsOnceAtTheEnd(t *testing.T) {
	// 0.4 kWh * 0.01 = 0.004 and 0.4h * 0.01 = 0.004.
	// Per-component rounding would give 0.00; rounding the sum gives 0.01.
	cost := ComputeCost(decimal.RequireFromString("0.4"), decimal.RequireFromString("0.4"), schedule("0.01", "0.01", "0"), false)
	assert.Equal(t, "0.01", cost.StringFixed(2))

	// half-up at the boundary
	cost = ComputeCost(decimal.RequireFromString("1"), decimal.Zero, schedule("2.345", "0", "0"), false)
	assert.Equal(t, "2.35", cost.StringFixed(2))
}

func TestComputeCost_Deterministic(t *testing.T) {
	s := schedule("0.2875", "1.1", "1.25")
	first := ComputeCost(decimal.RequireFromString("17.4321"), Hours(97*time.Minute), s, true)
	for i := 0; i < 50; i++ {
		assert.True(t, first.Equal(ComputeCost(decimal.RequireFromString("17.4321"), Hours(97*time.Minute), s, true)))
	}
}

func TestComputeCost_EnergyOnlyAndTimeOnly(t *testing.T) {
	assert.Equal(t, "3.00", ComputeCost(decimal.NewFromInt(10), decimal.NewFromInt(2), schedule("0.30", "0", "0"), false).StringFixed(2))
	assert.Equal(t, "2.00", ComputeCost(decimal.NewFromInt(10), decimal.NewFromInt(2), schedule("0", "1.00", "0"), false).StringFixed(2))
}

func TestCompute_Breakdown(t *testing.T) {
	b := Compute(decimal.NewFromInt(10), decimal.NewFromInt(2), schedule("0.30", "1.00", "1.5"), true)

	assert.Equal(t, "3.00", b.EnergyCharge.StringFixed(2))
	assert.Equal(t, "2.00", b.TimeCharge.StringFixed(2))
	assert.Equal(t, "1.5", b.Multiplier.String())
	assert.True(t, b.IsPeakHour)
	assert.Equal(t, "7.50", b.Total.StringFixed(2))
}

func TestHours(t *testing.T) {
	assert.Equal(t, "1.5", Hours(90*time.Minute).String())
	assert.True(t, Hours(-time.Minute).IsZero())
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "3.00", Quote(90*time.Minute, schedule("0.30", "2.00", "1.5")).StringFixed(2))
}

func TestPeakWindow_Contains(t *testing.T) {
	loc := time.FixedZone("test", 5*3600+30*60)
	w := DefaultPeakWindow(loc)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before window", time.Date(2025, 3, 1, 17, 59, 0, 0, loc), false},
		{"window start", time.Date(2025, 3, 1, 18, 0, 0, 0, loc), true},
		{"inside window", time.Date(2025, 3, 1, 20, 59, 59, 0, loc), true},
		{"window end is exclusive", time.Date(2025, 3, 1, 21, 0, 0, 0, loc), false},
		{"evaluated in window timezone", time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.at))
		})
	}
}

func TestPeakWindow_WrapsMidnight(t *testing.T) {
	w := PeakWindow{StartHour: 22, EndHour: 2, Location: time.UTC}

	assert.True(t, w.Contains(time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestRefund_StepFunction(t *testing.T) {
	amount := decimal.NewFromInt(50)

	assert.Equal(t, "50.00", Refund(amount, 3*time.Hour, 2*time.Hour, time.Hour).StringFixed(2))
	assert.Equal(t, "50.00", Refund(amount, 2*time.Hour, 2*time.Hour, time.Hour).StringFixed(2))
	assert.Equal(t, "25.00", Refund(amount, 90*time.Minute, 2*time.Hour, time.Hour).StringFixed(2))
	assert.Equal(t, "25.00", Refund(amount, time.Hour, 2*time.Hour, time.Hour).StringFixed(2))
	assert.Equal(t, "0.00", Refund(amount, 10*time.Minute, 2*time.Hour, time.Hour).StringFixed(2))
	assert.Equal(t, "0.00", Refund(amount, -time.Hour, 2*time.Hour, time.Hour).StringFixed(2))
}

func TestRefund_NonIncreasing(t *testing.T) {
	amount := decimal.RequireFromString("37.55")
	prev := Refund(amount, 10*time.Hour, 2*time.Hour, time.Hour)
	for notice := 10 * time.Hour; notice >= -time.Hour; notice -= 5 * time.Minute {
		got := Refund(amount, notice, 2*time.Hour, time.Hour)
		assert.True(t, got.LessThanOrEqual(prev), "refund increased at notice %s", notice)
		prev = got
	}
}
