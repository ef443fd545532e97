// Package storage holds what the durable store implementations share.
package storage

import (
	"sort"

	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// DefaultStatementSize is the number of entries a statement shows.
const DefaultStatementSize = 10

// Key identifies a stored transaction.
type Key struct {
	AccountID int
	TxID      int64
}

// Inserted returns the transactions of txs whose keys are in keys, in the
// order of txs.
func Inserted(txs []models.Transaction, keys map[Key]struct{}) []models.Transaction {
	out := make([]models.Transaction, 0, len(keys))
	for _, tx := range txs {
		if _, ok := keys[Key{AccountID: tx.AccountID, TxID: tx.TxID}]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// Adjustment is the net balance change of one account.
type Adjustment struct {
	AccountID int
	Amount    int64
}

// Adjustments sums txs per account, ordered by account id so concurrent
// writers update accounts in the same order.
func Adjustments(txs []models.Transaction) []Adjustment {
	sums := make(map[int]int64)
	for _, tx := range txs {
		sums[tx.AccountID] += tx.Amount
	}
	out := make([]Adjustment, 0, len(sums))
	for id, amount := range sums {
		out = append(out, Adjustment{AccountID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
