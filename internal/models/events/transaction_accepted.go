package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// TransactionAccepted is published once a transaction is durably stored.
type TransactionAccepted struct {
	EventID     string          `json:"event_id"`
	TxID        int64           `json:"tx_id"`
	AccountID   int             `json:"account_id"`
	Kind        models.Kind     `json:"kind"`
	Amount      decimal.Decimal `json:"amount"` // in units, ledger amounts are cents
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewTransactionAccepted(tx models.Transaction) TransactionAccepted {
	return TransactionAccepted{
		EventID:     uuid.New().String(),
		TxID:        tx.TxID,
		AccountID:   tx.AccountID,
		Kind:        tx.Kind,
		Amount:      decimal.New(tx.Amount, -2),
		Description: tx.Description,
		OccurredAt:  tx.OccurredAt,
	}
}
