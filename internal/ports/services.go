package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// CreateBookingRequest represents a request to book a charger window
type CreateBookingRequest struct {
	UserID    string    `json:"-"`
	ChargerID string    `json:"charger_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Emergency bool      `json:"emergency"`
	// RequireConfirmation creates the booking pending instead of reserved
	RequireConfirmation bool   `json:"require_confirmation"`
	Prepay              bool   `json:"prepay"`
	Notes               string `json:"notes,omitempty"`
}

// StartSessionRequest represents a request to start charging
type StartSessionRequest struct {
	ChargerID string  `json:"charger_id"`
	UserID    string  `json:"-"`
	BookingID *string `json:"booking_id,omitempty"`
}

// AvailabilityService exposes the slot conflict detector
type AvailabilityService interface {
	CheckAvailability(ctx context.Context, chargerID string, start, end time.Time) (*domain.Availability, error)
	Slots(ctx context.Context, chargerID string, day time.Time, slotLength time.Duration) ([]domain.TimeSlot, error)
}

// BookingService exposes the booking state machine
type BookingService interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*domain.Booking, error)
	Confirm(ctx context.Context, id string) (*domain.Booking, error)
	Cancel(ctx context.Context, id, reason string) (*domain.Booking, error)
	Reschedule(ctx context.Context, id string, start, end time.Time) (*domain.Booking, error)
	Complete(ctx context.Context, id string) (*domain.Booking, error)
	Get(ctx context.Context, id string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID string, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error)
	ListByCharger(ctx context.Context, chargerID string, from, to time.Time) ([]domain.Booking, error)
}

// SessionService exposes the charging session engine
type SessionService interface {
	Start(ctx context.Context, req *StartSessionRequest) (*domain.ChargingSession, error)
	RecordProgress(ctx context.Context, id string, t domain.Telemetry) (*domain.ChargingSession, error)
	Pause(ctx context.Context, id string) (*domain.ChargingSession, error)
	Resume(ctx context.Context, id string) (*domain.ChargingSession, error)
	Stop(ctx context.Context, id string) (*domain.ChargingSession, error)
	Get(ctx context.Context, id string) (*domain.ChargingSession, error)
	Active(ctx context.Context, userID string) ([]domain.ChargingSession, error)
	History(ctx context.Context, userID string, limit, offset int) ([]domain.ChargingSession, error)
	UserStats(ctx context.Context, userID string) (*domain.SessionStats, error)
	ChargerStats(ctx context.Context, chargerID string, from, to time.Time) (*domain.SessionStats, error)
}

// LedgerService is the wallet surface offered to clients
type LedgerService interface {
	Wallet(ctx context.Context, userID string) (*domain.Wallet, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Debit(ctx context.Context, e domain.LedgerEntry) (*domain.WalletTransaction, error)
	Credit(ctx context.Context, e domain.LedgerEntry) (*domain.WalletTransaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, note string) error
	Transactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, error)
}

// LedgerPoster posts ledger entries inside a caller's transaction.
// It is the only writer of wallet balances.
type LedgerPoster interface {
	DebitTx(ctx context.Context, tx Repositories, e domain.LedgerEntry) (*domain.WalletTransaction, error)
	CreditTx(ctx context.Context, tx Repositories, e domain.LedgerEntry) (*domain.WalletTransaction, error)
}

// ChargerService registers and administers chargers
type ChargerService interface {
	Register(ctx context.Context, charger *domain.Charger) (*domain.Charger, error)
	Get(ctx context.Context, id string) (*domain.Charger, error)
	SetStatus(ctx context.Context, id string, status domain.ChargerStatus) (*domain.Charger, error)
	UpdatePricing(ctx context.Context, id string, schedule domain.PriceSchedule) (*domain.Charger, error)
}

// PricingProvider looks up a charger's current price schedule
type PricingProvider interface {
	Schedule(ctx context.Context, chargerID string) (domain.PriceSchedule, error)
	Invalidate(ctx context.Context, chargerID string) error
}

// Notifier publishes lifecycle events. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}

// EmailSender delivers a plain notice
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ErrCacheMiss is returned by Cache.Get for absent or expired keys
var ErrCacheMiss = errors.New("cache miss")

// Cache defines a key-value cache
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
