package availability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// SlotConfig shapes the daily slot grid
type SlotConfig struct {
	OpenHour   int
	CloseHour  int
	SlotLength time.Duration
}

// DefaultSlotConfig returns 30-minute slots from 06:00 to 22:00
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{OpenHour: 6, CloseHour: 22, SlotLength: 30 * time.Minute}
}

// Checker answers occupancy questions about chargers
type Checker struct {
	store ports.UnitOfWork
	slots SlotConfig
	log   *zap.Logger
	now   func() time.Time
}

var _ ports.AvailabilityService = (*Checker)(nil)

// NewChecker creates a new availability checker
func NewChecker(store ports.UnitOfWork, slots SlotConfig, log *zap.Logger) *Checker {
	if slots.SlotLength <= 0 {
		slots = DefaultSlotConfig()
	}
	return &Checker{store: store, slots: slots, log: log, now: time.Now}
}

// WithClock replaces the time source, for tests
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// ValidateWindow rejects empty and inverted windows
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return domain.Validation("start and end are required")
	}
	if !end.After(start) {
		return domain.Validation("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// Occupancy counts the ports held on charger over [start, end) as of now:
// occupying bookings not yet charging plus open sessions. A session still
// open past its hold counts against every window until it stops. excludeBookingID leaves one booking
// and its session out, for reschedules. Called inside a transaction that
// locked the charger row, the count cannot change before commit.
func Occupancy(ctx context.Context, repos ports.Repositories, charger *domain.Charger, start, end, now time.Time, excludeBookingID string) (domain.Availability, error) {
	booked, err := repos.Bookings().CountOverlapping(ctx, charger.ID, start, end, excludeBookingID)
	if err != nil {
		return domain.Availability{}, domain.StorageFailure("count overlapping bookings", err)
	}
	charging, err := repos.Sessions().CountOccupying(ctx, charger.ID, start, end, now, excludeBookingID)
	if err != nil {
		return domain.Availability{}, domain.StorageFailure("count open sessions", err)
	}
	return domain.NewAvailability(charger.ID, start, end, charger.TotalPorts, booked+charging), nil
}

// CheckAvailability reports free ports on a charger for [start, end).
// The answer is advisory; admission re-checks inside the booking transaction.
func (c *Checker) CheckAvailability(ctx context.Context, chargerID string, start, end time.Time) (*domain.Availability, error) {
	if err := ValidateWindow(start, end); err != nil {
		return nil, err
	}

	charger, err := c.store.Chargers().FindByID(ctx, chargerID)
	if err != nil {
		return nil, domain.StorageFailure("find charger", err)
	}
	if charger == nil {
		return nil, domain.NotFound("charger", chargerID)
	}

	a, err := Occupancy(ctx, c.store, charger, start, end, c.now(), "")
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Slots returns the day's slot grid with free ports per slot. Past slots are never available.
func (c *Checker) Slots(ctx context.Context, chargerID string, day time.Time, slotLength time.Duration) ([]domain.TimeSlot, error) {
	if slotLength <= 0 {
		slotLength = c.slots.SlotLength
	}
	if slotLength < 5*time.Minute {
		return nil, domain.Validation("slot length must be at least 5 minutes")
	}

	charger, err := c.store.Chargers().FindByID(ctx, chargerID)
	if err != nil {
		return nil, domain.StorageFailure("find charger", err)
	}
	if charger == nil {
		return nil, domain.NotFound("charger", chargerID)
	}

	open := time.Date(day.Year(), day.Month(), day.Day(), c.slots.OpenHour, 0, 0, 0, day.Location())
	closing := time.Date(day.Year(), day.Month(), day.Day(), c.slots.CloseHour, 0, 0, 0, day.Location())

	bookings, err := c.store.Bookings().FindOverlapping(ctx, chargerID, open, closing)
	if err != nil {
		return nil, domain.StorageFailure("find bookings", err)
	}
	now := c.now()
	charging, err := c.store.Sessions().FindOccupying(ctx, chargerID, open, closing, now)
	if err != nil {
		return nil, domain.StorageFailure("find open sessions", err)
	}

	slots := make([]domain.TimeSlot, 0)
	for current := open; current.Before(closing); current = current.Add(slotLength) {
		slotEnd := current.Add(slotLength)
		if slotEnd.After(closing) {
			slotEnd = closing
		}

		occupied := 0
		for i := range bookings {
			if bookings[i].Overlaps(current, slotEnd) {
				occupied++
			}
		}
		for i := range charging {
			if charging[i].HoldsPortAt(current, slotEnd, now) {
				occupied++
			}
		}

		free := domain.NewAvailability(chargerID, current, slotEnd, charger.TotalPorts, occupied).AvailablePorts
		if current.Before(now) || !charger.Bookable() {
			free = 0
		}

		slots = append(slots, domain.TimeSlot{
			StartTime:      current,
			EndTime:        slotEnd,
			AvailablePorts: free,
			Available:      free > 0,
		})
	}

	return slots, nil
}
