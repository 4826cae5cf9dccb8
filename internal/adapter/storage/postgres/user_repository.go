package postgres

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// UserRepository reads the shared users table
type UserRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ ports.RecipientDirectory = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB, log *zap.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: log,
	}
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, nil
	}
	var user domain.User
	ok, err := first(r.db.WithContext(ctx), &user, "id = ?", id)
	if !ok {
		return nil, err
	}
	return &user, nil
}

// EmailFor returns the address to notify, or "" when the user is unknown
// or opted out of email.
func (r *UserRepository) EmailFor(ctx context.Context, userID string) (string, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		r.log.Debug("No user record for notification", zap.String("user_id", userID))
		return "", nil
	}
	if !user.NotifyByEmail {
		return "", nil
	}
	return user.Email, nil
}
