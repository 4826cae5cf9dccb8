package postgres

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// WalletRepository stores wallets and their append-only transaction rows
type WalletRepository struct {
	db *gorm.DB
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.find(r.db.WithContext(ctx), userID)
}

func (r *WalletRepository) FindByUserIDForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *WalletRepository) find(q *gorm.DB, userID string) (*domain.Wallet, error) {
	if !validID(userID) {
		return nil, nil
	}
	var wallet domain.Wallet
	ok, err := first(q, &wallet, "user_id = ?", userID)
	if !ok {
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) Save(ctx context.Context, wallet *domain.Wallet) error {
	return r.db.WithContext(ctx).Save(wallet).Error
}

func (r *WalletRepository) Ensure(ctx context.Context, wallet *domain.Wallet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(wallet).Error
}

func (r *WalletRepository) AppendTransaction(ctx context.Context, tx *domain.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *WalletRepository) FindTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, error) {
	if !validID(userID) {
		return nil, nil
	}
	var txs []domain.WalletTransaction
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	err := paginate(q, limit, offset).Find(&txs).Error
	return txs, err
}

func (r *WalletRepository) SumTransactions(ctx context.Context, userID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	if !validID(userID) {
		return sum, nil
	}
	err := r.db.WithContext(ctx).
		Model(&domain.WalletTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Row().
		Scan(&sum)
	return sum, err
}
