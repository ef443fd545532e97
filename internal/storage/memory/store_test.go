package memory

import (
	"context"
	"testing"
	"time"

	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func txn(account int, id, amount int64) models.Transaction {
	return models.Transaction{
		TxID:        id,
		AccountID:   account,
		Amount:      amount,
		Kind:        models.KindOf(amount),
		Description: "mem",
		OccurredAt:  time.Date(2024, 1, 1, 0, 0, int(id), 0, time.UTC),
	}
}

func TestInsertSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()
	require.NoError(t, s.CreateAccount(ctx, models.Account{ID: 1}))

	inserted, err := s.InsertTransactions(ctx, []models.Transaction{txn(1, 1, 50), txn(1, 2, -20)}, true)
	require.NoError(t, err)
	assert.Len(t, inserted, 2)

	inserted, err = s.InsertTransactions(ctx, []models.Transaction{txn(1, 2, -20), txn(1, 3, 5)}, true)
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, int64(3), inserted[0].TxID)

	bal, err := s.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(35), bal)
}

func TestReconcileUnknownAccountWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	_, err := s.InsertTransactions(ctx, []models.Transaction{txn(4, 1, 10)}, true)
	assert.ErrorIs(t, err, models.ErrUnknownAccount)

	entries, err := s.Tail(ctx, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTailNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	_, err := s.InsertTransactions(ctx, []models.Transaction{txn(1, 2, 1), txn(1, 1, 1), txn(2, 1, 9), txn(1, 3, 1)}, false)
	require.NoError(t, err)

	entries, err := s.Tail(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].TxID)
	assert.Equal(t, int64(2), entries[1].TxID)
}
