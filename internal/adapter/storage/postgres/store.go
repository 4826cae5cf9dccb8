package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Store implements ports.UnitOfWork on PostgreSQL.
// Repositories obtained from a transactional Store share its *gorm.DB.
type Store struct {
	db   *gorm.DB
	isTx bool
	log  *zap.Logger
}

var _ ports.UnitOfWork = (*Store)(nil)

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// WithTx runs fn in one database transaction. Nested calls reuse it.
func (s *Store) WithTx(ctx context.Context, fn func(ports.Repositories) error) error {
	if s.isTx {
		return fn(s)
	}

	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, isTx: true, log: s.log})
	})
	telemetry.DatabaseLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			s.log.Error("Transaction failed", zap.Error(err))
		}
		return domain.StorageFailure("transaction", err)
	}
	return nil
}

func (s *Store) Chargers() ports.ChargerRepository { return &ChargerRepository{db: s.db} }
func (s *Store) Bookings() ports.BookingRepository { return &BookingRepository{db: s.db} }
func (s *Store) Sessions() ports.SessionRepository { return &SessionRepository{db: s.db} }
func (s *Store) Wallets() ports.WalletRepository   { return &WalletRepository{db: s.db} }

// Ping checks the connection, for health probes
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// first loads one row into dest. A missing row, or an id that cannot be a
// primary key, yields (false, nil).
func first(q *gorm.DB, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := q.First(dest, append([]interface{}{query}, args...)...).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}
