package postgres

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// Options tunes the connection pool and query logging
type Options struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	LogQueries      bool
}

// NewConnection initializes a new PostgreSQL connection using GORM
func NewConnection(url string, opts Options, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if opts.LogQueries {
		level = logger.Info
	}
	slow := opts.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 10
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 100
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	log.Info("Successfully connected to PostgreSQL",
		zap.Int("max_open_conns", opts.MaxOpenConns),
		zap.Int("max_idle_conns", opts.MaxIdleConns),
	)
	return db, nil
}

// RunMigrations creates or updates the rental tables
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Charger{},
		&domain.Booking{},
		&domain.ChargingSession{},
		&domain.Wallet{},
		&domain.WalletTransaction{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
