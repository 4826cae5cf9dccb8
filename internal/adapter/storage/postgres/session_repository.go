package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

type SessionRepository struct {
	db *gorm.DB
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.ChargingSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.ChargingSession, error) {
	return r.find(r.db.WithContext(ctx), "id = ?", id)
}

func (r *SessionRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.ChargingSession, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *SessionRepository) FindOpenByBookingID(ctx context.Context, bookingID string) (*domain.ChargingSession, error) {
	return r.find(r.db.WithContext(ctx), "booking_id = ? AND status IN ?", bookingID, domain.OpenSessionStatuses)
}

func (r *SessionRepository) find(q *gorm.DB, query string, id string, args ...interface{}) (*domain.ChargingSession, error) {
	if !validID(id) {
		return nil, nil
	}
	var session domain.ChargingSession
	ok, err := first(q, &session, query, append([]interface{}{id}, args...)...)
	if !ok {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindOpenByUserID(ctx context.Context, userID string) ([]domain.ChargingSession, error) {
	if !validID(userID) {
		return nil, nil
	}
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, domain.OpenSessionStatuses).
		Order("start_time, id").
		Find(&sessions).Error
	return sessions, err
}

// occupying scopes q to open sessions on chargerID holding a port in
// [start, end): started before end and held past start. A session open past
// its hold is held until it stops.
func occupying(q *gorm.DB, chargerID string, start, end, now time.Time) *gorm.DB {
	return q.Where("charger_id = ? AND status IN ? AND start_time < ? AND (hold_until IS NULL OR hold_until > ? OR hold_until <= ?)",
		chargerID, domain.OpenSessionStatuses, end, start, now)
}

func (r *SessionRepository) CountOccupying(ctx context.Context, chargerID string, start, end, now time.Time, excludeBookingID string) (int, error) {
	q := occupying(r.db.WithContext(ctx).Model(&domain.ChargingSession{}), chargerID, start, end, now)
	if excludeBookingID != "" && validID(excludeBookingID) {
		q = q.Where("(booking_id IS NULL OR booking_id <> ?)", excludeBookingID)
	}
	var n int64
	err := q.Count(&n).Error
	return int(n), err
}

func (r *SessionRepository) FindOccupying(ctx context.Context, chargerID string, start, end, now time.Time) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := occupying(r.db.WithContext(ctx), chargerID, start, end, now).
		Order("start_time, id").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindHistoryByUserID(ctx context.Context, userID string, limit, offset int) ([]domain.ChargingSession, error) {
	if !validID(userID) {
		return nil, nil
	}
	var sessions []domain.ChargingSession
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("start_time DESC, id")
	err := paginate(q, limit, offset).Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindCompletedByChargerID(ctx context.Context, chargerID string, from, to time.Time) ([]domain.ChargingSession, error) {
	if !validID(chargerID) {
		return nil, nil
	}
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charger_id = ? AND status = ? AND start_time >= ? AND start_time < ?",
			chargerID, domain.SessionStatusCompleted, from, to).
		Order("start_time, id").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindCompletedByUserID(ctx context.Context, userID string) ([]domain.ChargingSession, error) {
	if !validID(userID) {
		return nil, nil
	}
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.SessionStatusCompleted).
		Order("start_time, id").
		Find(&sessions).Error
	return sessions, err
}
