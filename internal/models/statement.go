package models

import "time"

// TimestampLayout is used for every timestamp rendered in a statement.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in UTC with microsecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Statement is the rendered view of an account: balance plus the most recent entries.
type Statement struct {
	Balance            StatementBalance       `json:"balance"`
	RecentTransactions []StatementTransaction `json:"recent_transactions"`
}

type StatementBalance struct {
	Total         int64  `json:"total"`
	StatementDate string `json:"statement_date"`
	Limit         int64  `json:"limit"`
}

type StatementTransaction struct {
	Amount      int64  `json:"amount"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	OccurredAt  string `json:"occurred_at"`
}

// NewStatement renders a statement as of now. Amounts are shown unsigned with
// their kind, the way they were submitted.
func NewStatement(b Balance, entries []LedgerEntry, now time.Time) Statement {
	txs := make([]StatementTransaction, 0, len(entries))
	for _, e := range entries {
		amount := e.Delta
		if amount < 0 {
			amount = -amount
		}
		txs = append(txs, StatementTransaction{
			Amount:      amount,
			Kind:        e.Kind,
			Description: e.Description,
			OccurredAt:  FormatTimestamp(e.OccurredAt),
		})
	}
	return Statement{
		Balance: StatementBalance{
			Total:         b.Balance,
			StatementDate: FormatTimestamp(now),
			Limit:         b.CreditLimit,
		},
		RecentTransactions: txs,
	}
}

// AsOf returns a copy of s with only the statement date moved to now.
func (s Statement) AsOf(now time.Time) Statement {
	s.Balance.StatementDate = FormatTimestamp(now)
	return s
}
