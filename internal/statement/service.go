// Package statement renders account statements from the ledger balance and
// the most recent entries.
package statement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/cache"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

type Service struct {
	ledger  interfaces.Ledger
	sources []interfaces.EntrySource // tried in order
	cache   *cache.Cache
	size    int
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService renders statements of size entries, reading them from the
// first source that answers.
func NewService(ledger interfaces.Ledger, c *cache.Cache, size int, logger zerolog.Logger, sources ...interfaces.EntrySource) *Service {
	return &Service{
		ledger:  ledger,
		sources: sources,
		cache:   c,
		size:    size,
		now:     time.Now,
		logger:  logger,
	}
}

// Statement returns the account's statement. The ledger is always asked for
// the current version; entries are only read again when it has moved.
func (s *Service) Statement(ctx context.Context, accountID int) (models.Statement, error) {
	bal, err := s.ledger.Get(ctx, accountID)
	if err != nil {
		return models.Statement{}, err
	}
	return s.cache.GetOrRender(accountID, bal.Version, func() (models.Statement, error) {
		entries, err := s.entries(ctx, accountID)
		if err != nil {
			return models.Statement{}, err
		}
		return models.NewStatement(bal, asOfVersion(entries, bal.Version), s.now()), nil
	})
}

// asOfVersion drops entries applied after the balance was read, so the
// statement total always matches its newest entry. The version of an
// account is the id of its last transaction.
func asOfVersion(entries []models.LedgerEntry, version uint64) []models.LedgerEntry {
	for i, e := range entries {
		if e.TxID <= int64(version) {
			return entries[i:]
		}
	}
	return entries[:0]
}

func (s *Service) entries(ctx context.Context, accountID int) ([]models.LedgerEntry, error) {
	var errs []error
	for i, src := range s.sources {
		entries, err := src.Tail(ctx, accountID, s.size)
		if err == nil {
			return entries, nil
		}
		s.logger.Warn().Err(err).Int("account_id", accountID).Int("source", i).Msg("entry source failed, trying next")
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return []models.LedgerEntry{}, nil
	}
	return nil, fmt.Errorf("read entries of account %d: %w", accountID, errors.Join(errs...))
}
