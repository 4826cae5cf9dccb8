package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// Repositories is the set of repositories bound to one store handle.
// Inside UnitOfWork.WithTx every repository shares the transaction.
// Get-style lookups return (nil, nil) when the row does not exist.
type Repositories interface {
	Chargers() ChargerRepository
	Bookings() BookingRepository
	Sessions() SessionRepository
	Wallets() WalletRepository
}

// UnitOfWork runs fn atomically. Nested calls reuse the outer transaction.
type UnitOfWork interface {
	Repositories
	WithTx(ctx context.Context, fn func(tx Repositories) error) error
}

// ChargerRepository defines charger persistence
type ChargerRepository interface {
	Save(ctx context.Context, charger *domain.Charger) error
	FindByID(ctx context.Context, id string) (*domain.Charger, error)
	// FindByIDForUpdate row-locks the charger until the transaction ends
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Charger, error)
	UpdateStatus(ctx context.Context, id string, status domain.ChargerStatus) error
}

// BookingRepository defines booking persistence
type BookingRepository interface {
	Save(ctx context.Context, booking *domain.Booking) error
	FindByID(ctx context.Context, id string) (*domain.Booking, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	// CountOverlapping counts occupying bookings on the charger overlapping
	// [start, end). A booking with an open session is left to that session.
	CountOverlapping(ctx context.Context, chargerID string, start, end time.Time, excludeID string) (int, error)
	FindOverlapping(ctx context.Context, chargerID string, start, end time.Time) ([]domain.Booking, error)
	// FindPreemptible returns reserved normal-priority bookings overlapping [start, end), oldest first
	FindPreemptible(ctx context.Context, chargerID string, start, end time.Time, limit int) ([]domain.Booking, error)
	FindByUserID(ctx context.Context, userID string, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error)
	FindByChargerID(ctx context.Context, chargerID string, from, to time.Time) ([]domain.Booking, error)
	FindPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Booking, error)
	// FindOverrun returns occupying bookings whose window ended before now
	FindOverrun(ctx context.Context, now time.Time) ([]domain.Booking, error)
}

// SessionRepository defines charging session persistence
type SessionRepository interface {
	Save(ctx context.Context, session *domain.ChargingSession) error
	FindByID(ctx context.Context, id string) (*domain.ChargingSession, error)
	FindByIDForUpdate(ctx context.Context, id string) (*domain.ChargingSession, error)
	FindOpenByBookingID(ctx context.Context, bookingID string) (*domain.ChargingSession, error)
	FindOpenByUserID(ctx context.Context, userID string) ([]domain.ChargingSession, error)
	// CountOccupying counts open sessions on the charger holding a port in
	// [start, end). An open session holds from its start until its hold, and
	// with no end once now has passed the hold. Sessions of excludeBookingID
	// are left out.
	CountOccupying(ctx context.Context, chargerID string, start, end, now time.Time, excludeBookingID string) (int, error)
	FindOccupying(ctx context.Context, chargerID string, start, end, now time.Time) ([]domain.ChargingSession, error)
	FindHistoryByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.ChargingSession, error)
	FindCompletedByChargerID(ctx context.Context, chargerID string, from, to time.Time) ([]domain.ChargingSession, error)
	FindCompletedByUserID(ctx context.Context, userID string) ([]domain.ChargingSession, error)
}

// WalletRepository defines wallet and ledger persistence.
// Only the ledger service writes through it.
type WalletRepository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	FindByUserIDForUpdate(ctx context.Context, userID string) (*domain.Wallet, error)
	Save(ctx context.Context, wallet *domain.Wallet) error
	// Ensure inserts the wallet unless one already exists for its user
	Ensure(ctx context.Context, wallet *domain.Wallet) error
	AppendTransaction(ctx context.Context, tx *domain.WalletTransaction) error
	FindTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, error)
	SumTransactions(ctx context.Context, userID string) (decimal.Decimal, error)
}

// RecipientDirectory resolves a user's email for notices
type RecipientDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}
