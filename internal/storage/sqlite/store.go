// Package sqlite is a single-host durable store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/storage"
)

const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           INTEGER PRIMARY KEY,
	credit_limit INTEGER NOT NULL,
	balance      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	account_id    INTEGER NOT NULL REFERENCES accounts (id),
	tx_id         INTEGER NOT NULL,
	amount        INTEGER NOT NULL,
	balance_after INTEGER NOT NULL,
	kind          TEXT    NOT NULL,
	description   TEXT    NOT NULL,
	occurred_at   TEXT    NOT NULL,
	PRIMARY KEY (account_id, tx_id)
);
`

// rowsPerInsert keeps each statement under SQLite's bound parameter limit.
const rowsPerInsert = 500

type SQLiteLedgerStore struct {
	db *sql.DB
}

// New opens the database at path and applies the schema.
func New(path string) (*SQLiteLedgerStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; SQLite serializes them anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLedgerStore{db: db}, nil
}

func (s *SQLiteLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, credit_limit, balance) VALUES (?, ?, 0)
		ON CONFLICT (id) DO NOTHING`,
		account.ID, account.CreditLimit,
	)
	return err
}

func (s *SQLiteLedgerStore) InsertTransactions(ctx context.Context, txs []models.Transaction, reconcile bool) (inserted []models.Transaction, err error) {
	if len(txs) == 0 {
		return nil, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	keys := make(map[storage.Key]struct{}, len(txs))
	for start := 0; start < len(txs); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(txs))
		if err = insertChunk(ctx, dbTx, txs[start:end], keys); err != nil {
			return nil, err
		}
	}
	inserted = storage.Inserted(txs, keys)

	if reconcile {
		for _, adj := range storage.Adjustments(inserted) {
			var res sql.Result
			res, err = dbTx.ExecContext(ctx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, adj.Amount, adj.AccountID)
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

func insertChunk(ctx context.Context, dbTx *sql.Tx, txs []models.Transaction, keys map[storage.Key]struct{}) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO ledger_transactions
		(tx_id, account_id, amount, balance_after, kind, description, occurred_at) VALUES `)
	args := make([]any, 0, len(txs)*7)
	for i, tx := range txs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, tx.TxID, tx.AccountID, tx.Amount, tx.BalanceAfter,
			string(tx.Kind), tx.Description, models.FormatTimestamp(tx.OccurredAt))
	}
	sb.WriteString(` ON CONFLICT (account_id, tx_id) DO NOTHING RETURNING account_id, tx_id`)

	rows, err := dbTx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k storage.Key
		if err := rows.Scan(&k.AccountID, &k.TxID); err != nil {
			return err
		}
		keys[k] = struct{}{}
	}
	return rows.Err()
}

func (s *SQLiteLedgerStore) Tail(ctx context.Context, accountID int, max int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, amount, balance_after, occurred_at, kind, description
		FROM ledger_transactions WHERE account_id = ?
		ORDER BY tx_id DESC LIMIT ?`,
		accountID, max,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var (
			e          models.LedgerEntry
			occurredAt string
			kind       string
		)
		if err := rows.Scan(&e.TxID, &e.Delta, &e.BalanceAfter, &occurredAt, &kind, &e.Description); err != nil {
			return nil, err
		}
		if e.OccurredAt, err = time.Parse(models.TimestampLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("tx %d occurred_at: %w", e.TxID, err)
		}
		e.Kind = models.Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteLedgerStore) Balance(ctx context.Context, accountID int) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account %d: %w", accountID, models.ErrUnknownAccount)
	}
	return balance, err
}

func (s *SQLiteLedgerStore) Close() error {
	return s.db.Close()
}

var _ interfaces.DurableStore = (*SQLiteLedgerStore)(nil)
