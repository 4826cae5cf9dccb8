package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/adapter/storage/memory"
	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertConsistent(t *testing.T, svc *Service, userID string) {
	t.Helper()
	r, err := svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, r.Consistent, "balance %s != ledger sum %s", r.Balance, r.LedgerSum)
}

func TestWallet_CreatedOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), "USD", newTestLogger())

	w, err := svc.Wallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", w.UserID)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, "USD", w.Currency)

	again, err := svc.Wallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
}

func TestCreditAndDebit_RecordSignedRows(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, "USD", newTestLogger())

	// Act
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("100"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)
	row, err := svc.Debit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("30.25"), Reason: domain.ReasonChargingSession, ReferenceID: "s-1"})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, domain.TransactionKindDebit, row.Kind)
	assert.Equal(t, "-30.25", row.Amount.StringFixed(2))
	assert.Equal(t, "69.75", row.BalanceAfter.StringFixed(2))

	balance, err := svc.Balance(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "69.75", balance.StringFixed(2))

	rows, err := svc.Transactions(ctx, "u", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "s-1", rows[0].ReferenceID)
	assertConsistent(t, svc, "u")
}

func TestDebit_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), "USD", newTestLogger())
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("10"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("10.01"), Reason: domain.ReasonBookingPrepayment})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	balance, _ := svc.Balance(ctx, "u")
	assert.Equal(t, "10.00", balance.StringFixed(2))
	assertConsistent(t, svc, "u")
}

func TestDebit_OverdraftAllowed(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), "USD", newTestLogger())

	row, err := svc.Debit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("5"), Reason: domain.ReasonChargingSession, AllowOverdraft: true})

	require.NoError(t, err)
	assert.Equal(t, "-5.00", row.BalanceAfter.StringFixed(2))
	assertConsistent(t, svc, "u")
}

func TestPost_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), "USD", newTestLogger())

	tests := []struct {
		name  string
		entry domain.LedgerEntry
	}{
		{"missing user", domain.LedgerEntry{Amount: dec("1"), Reason: domain.ReasonTopUp}},
		{"zero amount", domain.LedgerEntry{UserID: "u", Amount: decimal.Zero, Reason: domain.ReasonTopUp}},
		{"negative amount", domain.LedgerEntry{UserID: "u", Amount: dec("-3"), Reason: domain.ReasonTopUp}},
		{"rounds to zero", domain.LedgerEntry{UserID: "u", Amount: dec("0.001"), Reason: domain.ReasonTopUp}},
		{"missing reason", domain.LedgerEntry{UserID: "u", Amount: dec("1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Credit(ctx, tt.entry)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}
}

func TestPost_StorageFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, "USD", newTestLogger())
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("20"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	store.FailOn("wallets.AppendTransaction", errors.New("disk full"))
	_, err = svc.Debit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("5"), Reason: domain.ReasonChargingSession})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorageFailure))
	balance, _ := svc.Balance(ctx, "u")
	assert.Equal(t, "20.00", balance.StringFixed(2))
	assertConsistent(t, svc, "u")
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), "USD", newTestLogger())
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "alice", Amount: dec("50"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	require.NoError(t, svc.Transfer(ctx, "alice", "bob", dec("20"), "split"))

	a, _ := svc.Balance(ctx, "alice")
	b, _ := svc.Balance(ctx, "bob")
	assert.Equal(t, "30.00", a.StringFixed(2))
	assert.Equal(t, "20.00", b.StringFixed(2))
	assertConsistent(t, svc, "alice")
	assertConsistent(t, svc, "bob")

	bobRows, _ := svc.Transactions(ctx, "bob", 10, 0)
	aliceRows, _ := svc.Transactions(ctx, "alice", 10, 0)
	assert.Equal(t, aliceRows[0].ReferenceID, bobRows[0].ReferenceID)
}

func TestTransfer_InsufficientFundsLeavesBothUntouched(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore(), "USD", newTestLogger())
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "alice", Amount: dec("5"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	err = svc.Transfer(ctx, "alice", "bob", dec("20"), "")
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

	a, _ := svc.Balance(ctx, "alice")
	b, _ := svc.Balance(ctx, "bob")
	assert.Equal(t, "5.00", a.StringFixed(2))
	assert.True(t, b.IsZero())
}

func TestTransfer_SameUserRejected(t *testing.T) {
	svc := NewService(memory.NewStore(), "USD", newTestLogger())
	err := svc.Transfer(context.Background(), "alice", "alice", dec("1"), "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestConcurrentPostings_KeepLedgerConsistent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, "USD", newTestLogger())
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("100"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.Debit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("7"), Reason: domain.ReasonBookingPrepayment})
			} else {
				_, err = svc.Credit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("1.5"), Reason: domain.ReasonTopUp})
			}
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, failed, 20)

	balance, err := svc.Balance(ctx, "u")
	require.NoError(t, err)
	assert.False(t, balance.IsNegative())
	assertConsistent(t, svc, "u")
}

func TestDebitTx_JoinsCallerTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, "USD", newTestLogger())
	_, err := svc.Credit(ctx, domain.LedgerEntry{UserID: "u", Amount: dec("10"), Reason: domain.ReasonTopUp})
	require.NoError(t, err)

	boom := errors.New("later step failed")
	err = store.WithTx(ctx, func(tx ports.Repositories) error {
		if _, err := svc.DebitTx(ctx, tx, domain.LedgerEntry{UserID: "u", Amount: dec("4"), Reason: domain.ReasonChargingSession}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	balance, _ := svc.Balance(ctx, "u")
	assert.Equal(t, "10.00", balance.StringFixed(2))
}
