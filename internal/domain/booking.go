package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusReserved  BookingStatus = "reserved"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusExpired   BookingStatus = "expired"
)

// OccupyingBookingStatuses consume a port for the booking window
var OccupyingBookingStatuses = []BookingStatus{
	BookingStatusReserved,
	BookingStatusConfirmed,
	BookingStatusActive,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusReserved, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusReserved:  {BookingStatusConfirmed, BookingStatusActive, BookingStatusCancelled, BookingStatusCompleted},
	BookingStatusConfirmed: {BookingStatusActive, BookingStatusCancelled, BookingStatusCompleted},
	BookingStatusActive:    {BookingStatusCompleted, BookingStatusCancelled},
}

// IsTerminal reports whether no further mutation is allowed
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// IsOccupying reports whether the status holds a port
func (s BookingStatus) IsOccupying() bool {
	for _, o := range OccupyingBookingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BookingPriority distinguishes emergency bookings, which may preempt normal ones
type BookingPriority string

const (
	BookingPriorityNormal    BookingPriority = "normal"
	BookingPriorityEmergency BookingPriority = "emergency"
)

// Booking holds a charger port for the half-open window [StartTime, EndTime)
type Booking struct {
	ID                 string           `json:"id" gorm:"primaryKey;type:uuid"`
	UserID             string           `json:"user_id" gorm:"type:uuid;index;not null"`
	ChargerID          string           `json:"charger_id" gorm:"type:uuid;index:idx_bookings_charger_window,priority:1;not null"`
	StartTime          time.Time        `json:"start_time" gorm:"type:timestamptz;index:idx_bookings_charger_window,priority:2;not null"`
	EndTime            time.Time        `json:"end_time" gorm:"type:timestamptz;not null"`
	DurationMinutes    int              `json:"duration_minutes" gorm:"not null"`
	Amount             decimal.Decimal  `json:"amount" gorm:"type:numeric(14,2);not null;default:0"`
	Prepaid            bool             `json:"prepaid" gorm:"not null;default:false"`
	Priority           BookingPriority  `json:"priority" gorm:"type:varchar(16);not null;default:normal"`
	Status             BookingStatus    `json:"status" gorm:"type:varchar(16);index;not null"`
	Notes              string           `json:"notes,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	RefundAmount       *decimal.Decimal `json:"refund_amount,omitempty" gorm:"type:numeric(14,2)"`
	RescheduleCount    int              `json:"reschedule_count" gorm:"not null;default:0"`
	ConfirmedAt        *time.Time       `json:"confirmed_at,omitempty" gorm:"type:timestamptz"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty" gorm:"type:timestamptz"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" gorm:"type:timestamptz"`
	RescheduledAt      *time.Time       `json:"rescheduled_at,omitempty" gorm:"type:timestamptz"`
	ExpiredAt          *time.Time       `json:"expired_at,omitempty" gorm:"type:timestamptz"`
	CreatedAt          time.Time        `json:"created_at" gorm:"type:timestamptz;index"`
	UpdatedAt          time.Time        `json:"updated_at" gorm:"type:timestamptz"`
}

func (Booking) TableName() string { return "bookings" }

// IsEmergency reports whether the booking was placed with emergency priority
func (b *Booking) IsEmergency() bool {
	return b.Priority == BookingPriorityEmergency
}

// Overlaps applies the half-open interval test against [start, end)
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// CanBeCancelled checks if booking can be cancelled
func (b *Booking) CanBeCancelled() bool {
	return b.Status.CanTransitionTo(BookingStatusCancelled)
}

// Refunded reports whether a refund was already settled for the booking
func (b *Booking) Refunded() bool {
	return b.RefundAmount != nil
}

// Duration returns the booked window length
func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}
