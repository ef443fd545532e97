package models

import "time"

// Transaction is an accepted mutation on its way to durable storage.
type Transaction struct {
	TxID         int64
	AccountID    int
	Amount       int64 // signed, same as LedgerEntry.Delta
	BalanceAfter int64
	Kind         Kind
	Description  string
	OccurredAt   time.Time
}

// TransactionFromEntry pairs a tail log entry with its account.
func TransactionFromEntry(accountID int, e LedgerEntry) Transaction {
	return Transaction{
		TxID:         e.TxID,
		AccountID:    accountID,
		Amount:       e.Delta,
		BalanceAfter: e.BalanceAfter,
		Kind:         e.Kind,
		Description:  e.Description,
		OccurredAt:   e.OccurredAt,
	}
}

// Entry converts the transaction back to its tail log shape.
func (t Transaction) Entry() LedgerEntry {
	return LedgerEntry{
		TxID:         t.TxID,
		Delta:        t.Amount,
		BalanceAfter: t.BalanceAfter,
		OccurredAt:   t.OccurredAt,
		Kind:         t.Kind,
		Description:  t.Description,
	}
}
