package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/models/events"
	"github.com/sheikh-saqib/account-ledger/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the next n inserts before delegating to a memory store.
type flakyStore struct {
	*memory.MemoryLedgerStore
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakyStore) InsertTransactions(ctx context.Context, txs []models.Transaction, reconcile bool) ([]models.Transaction, error) {
	s.mu.Lock()
	s.calls++
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	s.mu.Unlock()
	return s.MemoryLedgerStore.InsertTransactions(ctx, txs, reconcile)
}

type capturePublisher struct {
	mu     sync.Mutex
	keys   []string
	events []events.TransactionAccepted
}

func (p *capturePublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event.(events.TransactionAccepted))
	return nil
}

func tx(id int64) models.Transaction {
	return models.Transaction{
		TxID:         id,
		AccountID:    1,
		Amount:       -100,
		BalanceAfter: -100 * id,
		Kind:         models.KindDebit,
		Description:  "batch",
		OccurredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newStore(fails int) *flakyStore {
	return &flakyStore{MemoryLedgerStore: memory.NewMemoryLedgerStore(), fails: fails}
}

func stored(t *testing.T, s *flakyStore) int {
	t.Helper()
	entries, err := s.Tail(context.Background(), 1, 1000)
	require.NoError(t, err)
	return len(entries)
}

func TestImmediateModeWritesBeforeReturning(t *testing.T) {
	store := newStore(0)
	w := NewWriter(store, Config{Threshold: 100}, zerolog.Nop())
	require.False(t, w.Batched())

	require.NoError(t, w.Record(context.Background(), tx(1)))
	assert.Equal(t, 1, stored(t, store))
	assert.Zero(t, w.Pending())
}

func TestImmediateFailureIsSurfacedAndQueued(t *testing.T) {
	store := newStore(1)
	w := NewWriter(store, Config{Threshold: 100, MaxAttempts: 3}, zerolog.Nop())

	require.Error(t, w.Record(context.Background(), tx(1)))
	assert.Equal(t, 1, w.Pending())

	n, err := w.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, stored(t, store))
}

func TestBatchedModeDefersToFlush(t *testing.T) {
	store := newStore(0)
	w := NewWriter(store, Config{Threshold: 0}, zerolog.Nop())
	require.True(t, w.Batched())

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, w.Record(context.Background(), tx(i)))
	}
	assert.Zero(t, stored(t, store))
	assert.Equal(t, 5, w.Pending())

	n, err := w.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, stored(t, store))
	assert.Equal(t, 1, store.calls)
	assert.Zero(t, w.Pending())
}

func TestTickSwitchesModeOnVolume(t *testing.T) {
	ctx := context.Background()
	store := newStore(0)
	w := NewWriter(store, Config{Threshold: 3}, zerolog.Nop())

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, w.Record(ctx, tx(i)))
	}
	w.Tick(ctx)
	assert.True(t, w.Batched())

	require.NoError(t, w.Record(ctx, tx(4)))
	assert.Equal(t, 3, stored(t, store))
	w.Tick(ctx)
	assert.False(t, w.Batched())
	assert.Equal(t, 4, stored(t, store))
}

// Batched durability is best effort: a batch that keeps failing is dropped
// after MaxAttempts flushes while the ledger itself is unaffected.
func TestFailedFlushRetriesThenDrops(t *testing.T) {
	ctx := context.Background()
	store := newStore(2)
	w := NewWriter(store, Config{Threshold: 0, MaxAttempts: 2}, zerolog.Nop())

	w.Enqueue(tx(1))
	_, err := w.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, w.Pending())

	w.Enqueue(tx(2))
	_, err = w.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, w.Pending(), "tx 1 dropped, tx 2 kept for another attempt")

	n, err := w.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	entries, err := store.Tail(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].TxID)
}

func TestFlushIsIdempotentOnReplay(t *testing.T) {
	ctx := context.Background()
	store := newStore(0)
	require.NoError(t, store.CreateAccount(ctx, models.Account{ID: 1}))
	w := NewWriter(store, Config{Threshold: 0, Reconcile: true}, zerolog.Nop())

	w.Enqueue(tx(1))
	w.Enqueue(tx(2))
	_, err := w.Flush(ctx)
	require.NoError(t, err)

	// same transactions again, as after a crash between commit and dequeue
	w.Enqueue(tx(1))
	w.Enqueue(tx(2))
	n, err := w.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	bal, err := store.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-200), bal)
}

func TestPublishesInsertedTransactions(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	w := NewWriter(newStore(0), Config{Threshold: 0}, zerolog.Nop(), WithPublisher(pub))

	w.Enqueue(tx(1))
	_, err := w.Flush(ctx)
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, []string{"1"}, pub.keys)
	assert.Equal(t, int64(1), pub.events[0].TxID)
	assert.True(t, decimal.RequireFromString("-1").Equal(pub.events[0].Amount))
	assert.NotEmpty(t, pub.events[0].EventID)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	store := newStore(0)
	w := NewWriter(store, Config{Threshold: 0, Interval: time.Hour}, zerolog.Nop())
	w.Enqueue(tx(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, 1, stored(t, store))
}

func TestRunTicks(t *testing.T) {
	store := newStore(0)
	w := NewWriter(store, Config{Threshold: 0, Interval: 10 * time.Millisecond}, zerolog.Nop())
	w.Enqueue(tx(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool { return stored(t, store) == 1 }, time.Second, 5*time.Millisecond)
}
