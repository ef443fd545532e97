package models

// Account is one of the fixed set of accounts the ledger serves.
// It is immutable after startup.
type Account struct {
	ID            int   `yaml:"id" json:"id"`
	CreditLimit   int64 `yaml:"credit_limit" json:"credit_limit"`       // how far below zero the balance may go
	LogRecordSize int   `yaml:"log_record_size" json:"log_record_size"` // byte width of one tail log record
}

// Balance is a point-in-time read of an account's ledger state.
type Balance struct {
	AccountID   int
	Balance     int64
	CreditLimit int64
	Version     uint64 // bumped on every accepted mutation
}

// ApplyResult is returned for an accepted mutation.
type ApplyResult struct {
	AccountID    int
	TxID         int64
	BalanceAfter int64
	CreditLimit  int64
	Version      uint64
}
