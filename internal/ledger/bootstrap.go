package ledger

import (
	"context"
	"fmt"

	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// Bootstrap creates every configured account on l, local or remote.
func Bootstrap(ctx context.Context, l interfaces.Ledger, accounts []models.Account) error {
	for _, a := range accounts {
		if err := l.Create(ctx, a); err != nil {
			return fmt.Errorf("create account %d: %w", a.ID, err)
		}
	}
	return nil
}
