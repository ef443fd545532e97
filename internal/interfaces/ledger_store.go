package interfaces

import (
	"context"

	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// DurableStore is the slow, durable mirror of the ledger.
type DurableStore interface {
	// InsertTransactions stores txs in one write. Rows already stored are skipped.
	// With reconcile set, the stored account balances are adjusted by the
	// amounts of the rows actually inserted, in the same write.
	// It returns the transactions that were newly inserted.
	InsertTransactions(ctx context.Context, txs []models.Transaction, reconcile bool) ([]models.Transaction, error)
	EntrySource
}

// EntrySource serves the most recent entries of an account, newest first.
type EntrySource interface {
	Tail(ctx context.Context, accountID int, max int) ([]models.LedgerEntry, error)
}

// MutationSink receives every accepted mutation after it is committed.
type MutationSink interface {
	Record(ctx context.Context, tx models.Transaction) error
}
