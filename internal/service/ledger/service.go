package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/observability/telemetry"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

// Service is the single writer of wallet balances. Every balance change
// goes through post, which appends the matching ledger row in the same
// transaction.
type Service struct {
	store    ports.UnitOfWork
	currency string
	log      *zap.Logger
	now      func() time.Time
}

var (
	_ ports.LedgerService = (*Service)(nil)
	_ ports.LedgerPoster  = (*Service)(nil)
)

// NewService creates a new ledger service
func NewService(store ports.UnitOfWork, currency string, log *zap.Logger) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		store:    store,
		currency: currency,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Wallet retrieves or creates a user's wallet
func (s *Service) Wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, domain.Validation("user id is required")
	}

	wallet, err := s.store.Wallets().FindByUserID(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("find wallet", err)
	}
	if wallet != nil {
		return wallet, nil
	}

	err = s.store.WithTx(ctx, func(tx ports.Repositories) error {
		wallet, err = s.lockWallet(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// Balance returns the user's current balance
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	wallet, err := s.Wallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// Debit removes funds in its own transaction
func (s *Service) Debit(ctx context.Context, e domain.LedgerEntry) (*domain.WalletTransaction, error) {
	var row *domain.WalletTransaction
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		var err error
		row, err = s.DebitTx(ctx, tx, e)
		return err
	})
	return row, err
}

// Credit adds funds in its own transaction
func (s *Service) Credit(ctx context.Context, e domain.LedgerEntry) (*domain.WalletTransaction, error) {
	var row *domain.WalletTransaction
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		var err error
		row, err = s.CreditTx(ctx, tx, e)
		return err
	})
	return row, err
}

// DebitTx removes funds inside the caller's transaction. Without
// AllowOverdraft a debit larger than the balance fails with InsufficientFunds.
func (s *Service) DebitTx(ctx context.Context, tx ports.Repositories, e domain.LedgerEntry) (*domain.WalletTransaction, error) {
	return s.post(ctx, tx, e, domain.TransactionKindDebit)
}

// CreditTx adds funds inside the caller's transaction
func (s *Service) CreditTx(ctx context.Context, tx ports.Repositories, e domain.LedgerEntry) (*domain.WalletTransaction, error) {
	return s.post(ctx, tx, e, domain.TransactionKindCredit)
}

// Transfer moves funds between two users atomically. The sender may not overdraw.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID string, amount decimal.Decimal, note string) error {
	if fromUserID == "" || toUserID == "" {
		return domain.Validation("both users are required")
	}
	if fromUserID == toUserID {
		return domain.Validation("cannot transfer to the same wallet")
	}

	ref := uuid.New().String()
	err := s.store.WithTx(ctx, func(tx ports.Repositories) error {
		// lock in a fixed order so opposing transfers cannot deadlock
		users := []string{fromUserID, toUserID}
		sort.Strings(users)
		for _, u := range users {
			if _, err := s.lockWallet(ctx, tx, u); err != nil {
				return err
			}
		}

		if _, err := s.DebitTx(ctx, tx, domain.LedgerEntry{
			UserID:      fromUserID,
			Amount:      amount,
			Reason:      domain.ReasonTransferOut,
			ReferenceID: ref,
			Description: note,
		}); err != nil {
			return err
		}
		_, err := s.CreditTx(ctx, tx, domain.LedgerEntry{
			UserID:      toUserID,
			Amount:      amount,
			Reason:      domain.ReasonTransferIn,
			ReferenceID: ref,
			Description: note,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("Wallet transfer completed",
		zap.String("from_user_id", fromUserID),
		zap.String("to_user_id", toUserID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reference_id", ref),
	)
	return nil
}

// Transactions returns the user's ledger rows, newest first
func (s *Service) Transactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.store.Wallets().FindTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, domain.StorageFailure("find wallet transactions", err)
	}
	return rows, nil
}

// Reconciliation compares a wallet's balance with its ledger
type Reconciliation struct {
	UserID     string          `json:"user_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

// Reconcile checks that the balance equals the sum of the user's transactions
func (s *Service) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	wallet, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.Wallets().SumTransactions(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("sum wallet transactions", err)
	}

	r := &Reconciliation{
		UserID:     userID,
		Balance:    wallet.Balance,
		LedgerSum:  sum,
		Consistent: wallet.Balance.Equal(sum),
	}
	if !r.Consistent {
		s.log.Error("Wallet balance does not match ledger",
			zap.String("user_id", userID),
			zap.String("balance", wallet.Balance.String()),
			zap.String("ledger_sum", sum.String()),
		)
	}
	return r, nil
}

func (s *Service) post(ctx context.Context, tx ports.Repositories, e domain.LedgerEntry, kind domain.TransactionKind) (*domain.WalletTransaction, error) {
	if e.UserID == "" {
		return nil, domain.Validation("user id is required")
	}
	amount := e.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, domain.Validation("amount must be positive, got %s", e.Amount.String())
	}
	if e.Reason == "" {
		return nil, domain.Validation("ledger reason is required")
	}

	wallet, err := s.lockWallet(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}

	signed := amount
	if kind == domain.TransactionKindDebit {
		signed = amount.Neg()
	}
	newBalance := wallet.Balance.Add(signed)
	if kind == domain.TransactionKindDebit && newBalance.IsNegative() && !e.AllowOverdraft {
		return nil, domain.InsufficientFunds(e.UserID, wallet.Balance, amount)
	}

	now := s.now()
	wallet.Balance = newBalance
	wallet.UpdatedAt = now
	if err := tx.Wallets().Save(ctx, wallet); err != nil {
		return nil, domain.StorageFailure("update wallet balance", err)
	}

	row := &domain.WalletTransaction{
		ID:           uuid.New().String(),
		UserID:       e.UserID,
		Kind:         kind,
		Amount:       signed,
		BalanceAfter: newBalance,
		Reason:       e.Reason,
		ReferenceID:  e.ReferenceID,
		Description:  e.Description,
		CreatedAt:    now,
	}
	if err := tx.Wallets().AppendTransaction(ctx, row); err != nil {
		return nil, domain.StorageFailure("append wallet transaction", err)
	}

	telemetry.LedgerPostingsTotal.WithLabelValues(string(kind), e.Reason).Inc()
	s.log.Info("Wallet ledger posted",
		zap.String("user_id", e.UserID),
		zap.String("kind", string(kind)),
		zap.String("reason", e.Reason),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance_after", newBalance.StringFixed(2)),
		zap.String("reference_id", e.ReferenceID),
	)
	return row, nil
}

// lockWallet returns the user's wallet row locked for update, creating it first if absent
func (s *Service) lockWallet(ctx context.Context, tx ports.Repositories, userID string) (*domain.Wallet, error) {
	wallet, err := tx.Wallets().FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("lock wallet", err)
	}
	if wallet != nil {
		return wallet, nil
	}

	now := s.now()
	if err := tx.Wallets().Ensure(ctx, &domain.Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, domain.StorageFailure("create wallet", err)
	}

	wallet, err = tx.Wallets().FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("lock wallet", err)
	}
	if wallet == nil {
		return nil, domain.StorageFailure("create wallet", fmt.Errorf("wallet for user %s missing after insert", userID))
	}

	s.log.Info("Created new wallet", zap.String("user_id", userID), zap.String("wallet_id", wallet.ID))
	return wallet, nil
}
