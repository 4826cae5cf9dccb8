package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a lifecycle notification
type EventType string

const (
	EventBookingCreated     EventType = "booking.created"
	EventBookingConfirmed   EventType = "booking.confirmed"
	EventBookingCancelled   EventType = "booking.cancelled"
	EventBookingPreempted   EventType = "booking.preempted"
	EventBookingRescheduled EventType = "booking.rescheduled"
	EventBookingExpired     EventType = "booking.expired"
	EventBookingCompleted   EventType = "booking.completed"
	EventSessionStarted     EventType = "session.started"
	EventSessionCompleted   EventType = "session.completed"
	EventWalletOverdrawn    EventType = "wallet.overdrawn"
)

// Event is published after the state change it describes has committed
type Event struct {
	ID         string           `json:"id"`
	Type       EventType        `json:"type"`
	UserID     string           `json:"user_id"`
	ChargerID  string           `json:"charger_id,omitempty"`
	BookingID  string           `json:"booking_id,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	StartTime  *time.Time       `json:"start_time,omitempty"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
