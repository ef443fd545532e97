package taillog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// Store holds the tail logs of every account kept under one directory.
type Store struct {
	dir      string
	readOnly bool
	logger   zerolog.Logger

	mu   sync.RWMutex
	logs map[int]*Log
}

// NewStore returns a store that opens logs for appending.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger, logs: make(map[int]*Log)}
}

// NewReadOnlyStore returns a store for processes that only tail the logs
// another process appends to.
func NewReadOnlyStore(dir string, logger zerolog.Logger) *Store {
	s := NewStore(dir, logger)
	s.readOnly = true
	return s
}

// Add opens the log of account, or returns the one already open.
func (s *Store) Add(account models.Account) (*Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.logs[account.ID]; ok {
		return l, nil
	}
	var (
		l   *Log
		err error
	)
	if s.readOnly {
		l, err = OpenReadOnly(s.dir, account, s.logger)
	} else {
		l, err = Open(s.dir, account, s.logger)
	}
	if err != nil {
		return nil, err
	}
	s.logs[account.ID] = l
	return l, nil
}

func (s *Store) Log(accountID int) (*Log, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[accountID]
	return l, ok
}

// Tail implements interfaces.EntrySource.
func (s *Store) Tail(_ context.Context, accountID int, max int) ([]models.LedgerEntry, error) {
	l, ok := s.Log(accountID)
	if !ok {
		return nil, fmt.Errorf("tail log for account %d: %w", accountID, models.ErrUnknownAccount)
	}
	return l.Tail(max)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, l := range s.logs {
		errs = append(errs, l.Close())
		delete(s.logs, id)
	}
	return errors.Join(errs...)
}
