package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/metrics"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/taillog"
)

// Ledger is the in-process ledger. Every account has its own lock; no lock
// is shared between accounts.
type Ledger struct {
	logs   *taillog.Store
	sink   interfaces.MutationSink // optional, receives accepted mutations
	now    func() time.Time
	logger zerolog.Logger

	mapMu    sync.RWMutex // protects the accounts map itself
	accounts map[int]*accountState
}

type accountState struct {
	mu       sync.RWMutex
	account  models.Account
	balance  int64
	nextTxID int64
	version  uint64
	log      *taillog.Log
}

type Option func(*Ledger)

// WithSink hands every accepted mutation to sink after it is committed.
func WithSink(sink interfaces.MutationSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger whose accounts append to logs.
func NewLedger(logs *taillog.Store, logger zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		logs:     logs,
		now:      time.Now,
		logger:   logger,
		accounts: make(map[int]*accountState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create registers account, recovering its balance and next transaction id
// from the last tail log record. Creating an existing account with the same
// parameters is a no-op.
func (l *Ledger) Create(_ context.Context, account models.Account) error {
	if account.ID <= 0 || account.CreditLimit < 0 {
		return fmt.Errorf("invalid account %+v", account)
	}

	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if st, exists := l.accounts[account.ID]; exists {
		if st.account != account {
			return fmt.Errorf("account %d: %w", account.ID, models.ErrAccountConflict)
		}
		return nil
	}

	log, err := l.logs.Add(account)
	if err != nil {
		return err
	}
	st := &accountState{account: account, nextTxID: 1, log: log}

	rec, err := log.Recover()
	if err != nil {
		return fmt.Errorf("recover account %d: %w", account.ID, err)
	}
	if rec.Found {
		// every record holds one transaction, so ids of unreadable records
		// newer than the last good one are skipped rather than reused
		st.balance = rec.Last.BalanceAfter
		st.nextTxID = rec.Last.TxID + rec.Skipped + 1
		st.version = uint64(st.nextTxID - 1)
		l.logger.Info().
			Int("account_id", account.ID).
			Int64("balance", st.balance).
			Int64("last_tx_id", st.nextTxID-1).
			Msg("recovered account from tail log")
		if rec.Skipped > 0 {
			l.logger.Error().
				Int("account_id", account.ID).
				Int64("skipped_records", rec.Skipped).
				Int64("recovered_from_tx_id", rec.Last.TxID).
				Msg("newest tail log records are unreadable, their amounts are missing from the recovered balance")
		}
	}
	l.accounts[account.ID] = st
	return nil
}

func (l *Ledger) getAccount(accountID int) (*accountState, error) {
	l.mapMu.RLock()
	defer l.mapMu.RUnlock()

	st, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", accountID, models.ErrUnknownAccount)
	}
	return st, nil
}

// Apply adds delta to the account's balance unless that would take it below
// -credit_limit. Check, tail log append and commit happen under the
// account's lock. A rejected mutation changes nothing.
func (l *Ledger) Apply(ctx context.Context, accountID int, delta int64, description string) (models.ApplyResult, error) {
	st, err := l.getAccount(accountID)
	if err != nil {
		return models.ApplyResult{}, err
	}

	st.mu.Lock()
	if !withinLimit(st.balance, delta, st.account.CreditLimit) {
		st.mu.Unlock()
		metrics.RecordMutation("rejected")
		l.logger.Debug().Int("account_id", accountID).Int64("delta", delta).Msg("mutation rejected")
		return models.ApplyResult{}, models.ErrRejected
	}

	entry := models.LedgerEntry{
		TxID:         st.nextTxID,
		Delta:        delta,
		BalanceAfter: st.balance + delta,
		OccurredAt:   l.now().UTC().Truncate(time.Microsecond),
		Kind:         models.KindOf(delta),
		Description:  description,
	}
	if err := st.log.Append(entry); err != nil {
		st.mu.Unlock()
		metrics.RecordMutation("error")
		return models.ApplyResult{}, fmt.Errorf("account %d: %w", accountID, err)
	}
	st.balance = entry.BalanceAfter
	st.nextTxID++
	st.version++
	result := models.ApplyResult{
		AccountID:    accountID,
		TxID:         entry.TxID,
		BalanceAfter: entry.BalanceAfter,
		CreditLimit:  st.account.CreditLimit,
		Version:      st.version,
	}
	st.mu.Unlock()
	metrics.RecordMutation("accepted")

	if l.sink != nil {
		if err := l.sink.Record(ctx, models.TransactionFromEntry(accountID, entry)); err != nil {
			return result, fmt.Errorf("%w: tx %d: %v", models.ErrStorageUnavailable, entry.TxID, err)
		}
	}
	return result, nil
}

// withinLimit reports whether balance+delta stays at or above -limit
// without overflowing.
func withinLimit(balance, delta, limit int64) bool {
	if delta > 0 && balance > math.MaxInt64-delta {
		return false
	}
	if delta < 0 && balance < math.MinInt64-delta {
		return false
	}
	return balance+delta >= -limit
}

// Get returns the latest committed state of the account.
func (l *Ledger) Get(_ context.Context, accountID int) (models.Balance, error) {
	st, err := l.getAccount(accountID)
	if err != nil {
		return models.Balance{}, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	return models.Balance{
		AccountID:   accountID,
		Balance:     st.balance,
		CreditLimit: st.account.CreditLimit,
		Version:     st.version,
	}, nil
}

// Accounts lists the registered accounts ordered by id.
func (l *Ledger) Accounts() []models.Account {
	l.mapMu.RLock()
	defer l.mapMu.RUnlock()

	out := make([]models.Account, 0, len(l.accounts))
	for _, st := range l.accounts {
		out = append(out, st.account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ interfaces.Ledger = (*Ledger)(nil)
