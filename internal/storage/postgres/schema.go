package postgres

// Schema creates the durable tables. It is safe to apply more than once.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           INTEGER PRIMARY KEY,
	credit_limit BIGINT  NOT NULL,
	balance      BIGINT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ledger_transactions (
	account_id    INTEGER     NOT NULL REFERENCES accounts (id),
	tx_id         BIGINT      NOT NULL,
	amount        BIGINT      NOT NULL,
	balance_after BIGINT      NOT NULL,
	kind          CHAR(1)     NOT NULL,
	description   VARCHAR(10) NOT NULL,
	occurred_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account_id, tx_id)
);
`
