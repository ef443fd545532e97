package models

import (
	"time"
)

// Kind is the transaction kind as the front-end receives it.
type Kind string

const (
	KindCredit Kind = "c"
	KindDebit  Kind = "d"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindCredit || k == KindDebit
}

// KindOf folds a signed delta back into its kind.
func KindOf(delta int64) Kind {
	if delta < 0 {
		return KindDebit
	}
	return KindCredit
}

// SignedAmount folds the kind into the sign of amount.
func SignedAmount(kind Kind, amount int64) int64 {
	if kind == KindDebit {
		return -amount
	}
	return amount
}

// LedgerEntry represents a single tail log record for an account
type LedgerEntry struct {
	TxID         int64     // matches the id assigned when the mutation was accepted
	Delta        int64     // credit positive, debit negative
	BalanceAfter int64     // balance right after this entry
	OccurredAt   time.Time // UTC, microsecond precision
	Kind         Kind
	Description  string // 1 to 10 characters
}
