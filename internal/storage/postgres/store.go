package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces" // interface DurableStore
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/storage"
)

type PostgresLedgerStore struct {
	db *sql.DB
}

// Open connects to Postgres with lib/pq.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, Schema)
	return err
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, credit_limit, balance) VALUES ($1, $2, 0)
	ON CONFLICT (id) DO NOTHING`

	_, err := p.db.ExecContext(ctx, query, account.ID, account.CreditLimit)
	return err
}

// insertQuery writes the whole batch in one statement by unnesting one array
// per column. Rows already stored are skipped and not returned.
const insertQuery = `INSERT INTO ledger_transactions
	(tx_id, account_id, amount, balance_after, kind, description, occurred_at)
	SELECT * FROM unnest($1::bigint[], $2::integer[], $3::bigint[], $4::bigint[], $5::text[], $6::text[], $7::timestamptz[])
	ON CONFLICT (account_id, tx_id) DO NOTHING
	RETURNING account_id, tx_id`

const adjustQuery = `UPDATE accounts SET balance = balance + $1 WHERE id = $2`

func (p *PostgresLedgerStore) InsertTransactions(ctx context.Context, txs []models.Transaction, reconcile bool) (inserted []models.Transaction, err error) {
	if len(txs) == 0 {
		return nil, nil
	}

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	var (
		txIDs      = make([]int64, len(txs))
		accountIDs = make([]int64, len(txs))
		amounts    = make([]int64, len(txs))
		balances   = make([]int64, len(txs))
		kinds      = make([]string, len(txs))
		descs      = make([]string, len(txs))
		times      = make([]string, len(txs))
	)
	for i, tx := range txs {
		txIDs[i] = tx.TxID
		accountIDs[i] = int64(tx.AccountID)
		amounts[i] = tx.Amount
		balances[i] = tx.BalanceAfter
		kinds[i] = string(tx.Kind)
		descs[i] = tx.Description
		times[i] = tx.OccurredAt.UTC().Format(time.RFC3339Nano)
	}

	rows, err := dbTx.QueryContext(ctx, insertQuery,
		pq.Array(txIDs), pq.Array(accountIDs), pq.Array(amounts), pq.Array(balances),
		pq.Array(kinds), pq.Array(descs), pq.Array(times))
	if err != nil {
		return nil, err
	}
	keys := make(map[storage.Key]struct{}, len(txs))
	for rows.Next() {
		var k storage.Key
		if err = rows.Scan(&k.AccountID, &k.TxID); err != nil {
			rows.Close()
			return nil, err
		}
		keys[k] = struct{}{}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	inserted = storage.Inserted(txs, keys)

	if reconcile {
		for _, adj := range storage.Adjustments(inserted) {
			var res sql.Result
			res, err = dbTx.ExecContext(ctx, adjustQuery, adj.Amount, adj.AccountID)
			if err != nil {
				return nil, err
			}
			var n int64
			if n, err = res.RowsAffected(); err != nil {
				return nil, err
			}
			if n != 1 {
				err = fmt.Errorf("reconcile account %d: %w", adj.AccountID, models.ErrUnknownAccount)
				return nil, err
			}
		}
	}

	if err = dbTx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (p *PostgresLedgerStore) Tail(ctx context.Context, accountID int, max int) ([]models.LedgerEntry, error) {
	const query = `SELECT tx_id, amount, balance_after, occurred_at, kind, description
	FROM ledger_transactions WHERE account_id = $1
	ORDER BY tx_id DESC LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, accountID, max)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var (
			entry models.LedgerEntry
			kind  string
		)
		if err := rows.Scan(&entry.TxID, &entry.Delta, &entry.BalanceAfter, &entry.OccurredAt, &kind, &entry.Description); err != nil {
			return nil, err
		}
		entry.Kind = models.Kind(kind)
		entry.OccurredAt = entry.OccurredAt.UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Balance returns the reconciled balance of the account.
func (p *PostgresLedgerStore) Balance(ctx context.Context, accountID int) (int64, error) {
	const query = `SELECT balance FROM accounts WHERE id = $1`

	var balance int64
	err := p.db.QueryRowContext(ctx, query, accountID).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account %d: %w", accountID, models.ErrUnknownAccount)
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

var _ interfaces.DurableStore = (*PostgresLedgerStore)(nil)
