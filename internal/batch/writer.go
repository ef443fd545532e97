// Package batch mirrors accepted mutations to durable storage, either one
// write per mutation or in periodic bulk writes depending on load.
package batch

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/metrics"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/models/events"
)

type Config struct {
	Interval time.Duration
	// Threshold is the number of mutations per interval at which writes
	// switch to batched. Zero keeps writes batched at all times.
	Threshold int64
	// MaxAttempts is how many flushes a queued mutation takes part in before
	// it is dropped.
	MaxAttempts int
	// Reconcile also adjusts the durable account balances on every write.
	Reconcile bool
}

type queued struct {
	tx       models.Transaction
	attempts int
}

// Writer is a MutationSink. Producers never block on the queue; Flush is
// the only consumer and never runs concurrently with itself.
type Writer struct {
	store     interfaces.DurableStore
	publisher interfaces.EventPublisher
	cfg       Config
	logger    zerolog.Logger

	mu    sync.Mutex
	queue []queued

	flushMu  sync.Mutex
	requests atomic.Int64
	batched  atomic.Bool
}

type Option func(*Writer)

// WithPublisher publishes a TransactionAccepted event for every newly
// stored transaction.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(w *Writer) { w.publisher = p }
}

func NewWriter(store interfaces.DurableStore, cfg Config, logger zerolog.Logger, opts ...Option) *Writer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	w := &Writer{store: store, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	w.batched.Store(cfg.Threshold <= 0)
	metrics.SetBatchedMode(w.batched.Load())
	return w
}

// Enqueue adds tx to the next flush.
func (w *Writer) Enqueue(tx models.Transaction) {
	w.mu.Lock()
	w.queue = append(w.queue, queued{tx: tx})
	w.mu.Unlock()
}

// Record persists tx before returning when writes are immediate, and only
// queues it when they are batched. A failed immediate write is returned to
// the caller and the transaction is queued for the next flush.
func (w *Writer) Record(ctx context.Context, tx models.Transaction) error {
	w.requests.Add(1)
	if w.batched.Load() {
		w.Enqueue(tx)
		return nil
	}

	inserted, err := w.store.InsertTransactions(ctx, []models.Transaction{tx}, w.cfg.Reconcile)
	if err != nil {
		w.logger.Warn().Err(err).Int64("tx_id", tx.TxID).Int("account_id", tx.AccountID).
			Msg("immediate write failed, queued for next flush")
		w.Enqueue(tx)
		return err
	}
	w.publish(ctx, inserted)
	return nil
}

// Flush writes everything queued so far in one bulk write. Transactions stay
// queued until that write commits; on failure they are put back in front
// of newer ones, and dropped once they have failed MaxAttempts times.
func (w *Writer) Flush(ctx context.Context) (int, error) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	txs := make([]models.Transaction, len(batch))
	for i, q := range batch {
		txs[i] = q.tx
	}
	inserted, err := w.store.InsertTransactions(ctx, txs, w.cfg.Reconcile)
	metrics.RecordFlush(len(txs), err)
	if err != nil {
		w.requeue(batch, err)
		return 0, err
	}

	w.logger.Debug().Int("queued", len(txs)).Int("inserted", len(inserted)).Msg("flushed batch")
	w.publish(ctx, inserted)
	return len(inserted), nil
}

func (w *Writer) requeue(batch []queued, cause error) {
	kept := batch[:0]
	var dropped []int64
	for _, q := range batch {
		q.attempts++
		if q.attempts >= w.cfg.MaxAttempts {
			dropped = append(dropped, q.tx.TxID)
			continue
		}
		kept = append(kept, q)
	}

	w.mu.Lock()
	w.queue = append(kept, w.queue...)
	w.mu.Unlock()

	w.logger.Error().Err(cause).Int("batch_size", len(batch)).Int("requeued", len(kept)).Msg("flush failed")
	if len(dropped) > 0 {
		w.logger.Error().Err(cause).Ints64("tx_ids", dropped).Msg("dropping transactions after repeated flush failures")
	}
}

func (w *Writer) publish(ctx context.Context, txs []models.Transaction) {
	if w.publisher == nil {
		return
	}
	for _, tx := range txs {
		key := strconv.Itoa(tx.AccountID)
		if err := w.publisher.Publish(ctx, key, events.NewTransactionAccepted(tx)); err != nil {
			w.logger.Warn().Err(err).Int64("tx_id", tx.TxID).Msg("publish transaction event failed")
		}
	}
}

// Tick flushes the queue, then picks the write mode for the next interval
// from the number of mutations seen in the last one.
func (w *Writer) Tick(ctx context.Context) {
	// failures are logged by requeue
	_, _ = w.Flush(ctx)

	count := w.requests.Swap(0)
	batched := count >= w.cfg.Threshold
	if w.batched.Swap(batched) != batched {
		w.logger.Info().Bool("batched", batched).Int64("requests", count).Msg("durable write mode changed")
	}
	metrics.SetBatchedMode(batched)
}

// Run ticks every Interval until ctx is done, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, err := w.Flush(final); err != nil {
				w.logger.Error().Err(err).Int("pending", w.Pending()).Msg("final flush failed")
			}
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

func (w *Writer) Batched() bool {
	return w.batched.Load()
}

// Pending returns the number of queued transactions.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

var _ interfaces.MutationSink = (*Writer)(nil)
