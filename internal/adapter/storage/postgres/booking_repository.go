package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func (r *BookingRepository) Save(ctx context.Context, booking *domain.Booking) error {
	return r.db.WithContext(ctx).Save(booking).Error
}

func (r *BookingRepository) FindByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.find(r.db.WithContext(ctx), id)
}

func (r *BookingRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *BookingRepository) find(q *gorm.DB, id string) (*domain.Booking, error) {
	if !validID(id) {
		return nil, nil
	}
	var booking domain.Booking
	ok, err := first(q, &booking, "id = ?", id)
	if !ok {
		return nil, err
	}
	return &booking, nil
}

// overlapping scopes q to occupying bookings on chargerID intersecting
// [start, end). Bookings being charged are held by their open session.
func overlapping(q *gorm.DB, chargerID string, start, end time.Time) *gorm.DB {
	return q.Where("charger_id = ? AND status IN ? AND start_time < ? AND end_time > ?",
		chargerID, domain.OccupyingBookingStatuses, end, start).
		Where("NOT EXISTS (SELECT 1 FROM charging_sessions s WHERE s.booking_id = bookings.id AND s.status IN ?)",
			domain.OpenSessionStatuses)
}

func (r *BookingRepository) CountOverlapping(ctx context.Context, chargerID string, start, end time.Time, excludeID string) (int, error) {
	q := overlapping(r.db.WithContext(ctx).Model(&domain.Booking{}), chargerID, start, end)
	if excludeID != "" && validID(excludeID) {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *BookingRepository) FindOverlapping(ctx context.Context, chargerID string, start, end time.Time) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := overlapping(r.db.WithContext(ctx), chargerID, start, end).
		Order("start_time, id").
		Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepository) FindPreemptible(ctx context.Context, chargerID string, start, end time.Time, limit int) ([]domain.Booking, error) {
	var bookings []domain.Booking
	q := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("charger_id = ? AND status = ? AND priority = ? AND start_time < ? AND end_time > ?",
			chargerID, domain.BookingStatusReserved, domain.BookingPriorityNormal, end, start).
		Order("created_at, id")
	err := paginate(q, limit, 0).Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepository) FindByUserID(ctx context.Context, userID string, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	if !validID(userID) {
		return nil, nil
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var bookings []domain.Booking
	err := paginate(q.Order("created_at DESC, id DESC"), limit, offset).Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepository) FindByChargerID(ctx context.Context, chargerID string, from, to time.Time) ([]domain.Booking, error) {
	if !validID(chargerID) {
		return nil, nil
	}
	var bookings []domain.Booking
	err := r.db.WithContext(ctx).
		Where("charger_id = ? AND start_time < ? AND end_time > ?", chargerID, to, from).
		Order("start_time, id").
		Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepository) FindPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.BookingStatusPending, cutoff).
		Order("created_at, id").
		Find(&bookings).Error
	return bookings, err
}

func (r *BookingRepository) FindOverrun(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status IN ? AND end_time < ?", domain.OccupyingBookingStatuses, now).
		Order("start_time, id").
		Find(&bookings).Error
	return bookings, err
}
