package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"fmt"
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex

	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces" // interface DurableStore
	"github.com/sheikh-saqib/account-ledger/internal/models"                // domain models: Transaction, LedgerEntry
)

type txKey struct {
	accountID int
	txID      int64
}

// MemoryLedgerStore is an in-memory implementation of interfaces.DurableStore.
// It is safe for concurrent use.
type MemoryLedgerStore struct {
	mu           sync.Mutex                   // protects everything below
	transactions map[txKey]models.Transaction // stored transactions by (account, tx id)
	byAccount    map[int][]models.Transaction // insertion order per account
	balances     map[int]int64                // reconciled balances
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		transactions: make(map[txKey]models.Transaction),
		byAccount:    make(map[int][]models.Transaction),
		balances:     make(map[int]int64),
	}
}

// CreateAccount registers an account so its balance can be reconciled.
func (m *MemoryLedgerStore) CreateAccount(_ context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.balances[account.ID]; !exists {
		m.balances[account.ID] = 0
	}
	return nil
}

// InsertTransactions stores txs, skipping ones already stored, and adjusts
// balances by the newly stored amounts when reconcile is set.
func (m *MemoryLedgerStore) InsertTransactions(ctx context.Context, txs []models.Transaction, reconcile bool) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits (even if error occurs)

	if reconcile {
		for _, tx := range txs {
			if _, ok := m.balances[tx.AccountID]; !ok {
				return nil, fmt.Errorf("reconcile account %d: %w", tx.AccountID, models.ErrUnknownAccount)
			}
		}
	}

	inserted := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		key := txKey{accountID: tx.AccountID, txID: tx.TxID}
		if _, exists := m.transactions[key]; exists {
			continue
		}
		m.transactions[key] = tx
		m.byAccount[tx.AccountID] = append(m.byAccount[tx.AccountID], tx)
		if reconcile {
			m.balances[tx.AccountID] += tx.Amount
		}
		inserted = append(inserted, tx)
	}
	return inserted, nil
}

// Tail returns the newest max entries of the account by tx id.
func (m *MemoryLedgerStore) Tail(_ context.Context, accountID int, max int) ([]models.LedgerEntry, error) {
	m.mu.Lock()         // lock to prevent concurrent modification while reading
	defer m.mu.Unlock() // unlock automatically at the end

	// copy so sorting doesn't touch internal state
	txs := make([]models.Transaction, len(m.byAccount[accountID]))
	copy(txs, m.byAccount[accountID])
	sort.Slice(txs, func(i, j int) bool { return txs[i].TxID > txs[j].TxID })

	if max < len(txs) {
		txs = txs[:max]
	}
	entries := make([]models.LedgerEntry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, tx.Entry())
	}
	return entries, nil
}

// Balance returns the reconciled balance of the account.
func (m *MemoryLedgerStore) Balance(_ context.Context, accountID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[accountID]
	if !ok {
		return 0, fmt.Errorf("account %d: %w", accountID, models.ErrUnknownAccount)
	}
	return bal, nil
}

// Compile-time check: ensure MemoryLedgerStore implements DurableStore interface
var _ interfaces.DurableStore = (*MemoryLedgerStore)(nil)
