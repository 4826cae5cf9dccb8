package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

type ChargerRepository struct {
	db *gorm.DB
}

func (r *ChargerRepository) Save(ctx context.Context, charger *domain.Charger) error {
	return r.db.WithContext(ctx).Save(charger).Error
}

func (r *ChargerRepository) FindByID(ctx context.Context, id string) (*domain.Charger, error) {
	return r.find(r.db.WithContext(ctx), id)
}

func (r *ChargerRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Charger, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *ChargerRepository) find(q *gorm.DB, id string) (*domain.Charger, error) {
	if !validID(id) {
		return nil, nil
	}
	var charger domain.Charger
	ok, err := first(q, &charger, "id = ?", id)
	if !ok {
		return nil, err
	}
	return &charger, nil
}

func (r *ChargerRepository) UpdateStatus(ctx context.Context, id string, status domain.ChargerStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Charger{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
