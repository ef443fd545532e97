package interfaces

import (
	"context"

	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// Ledger is the authoritative per-account state machine, either in this
// process or reached over the wire.
type Ledger interface {
	Create(ctx context.Context, account models.Account) error
	Apply(ctx context.Context, accountID int, delta int64, description string) (models.ApplyResult, error)
	Get(ctx context.Context, accountID int) (models.Balance, error)
}
