package models

import "errors"

var (
	// ErrRejected means the mutation would take the balance below -credit_limit.
	// It is an expected outcome, not a fault.
	ErrRejected = errors.New("credit limit exceeded")

	ErrUnknownAccount  = errors.New("unknown account")
	ErrAccountConflict = errors.New("account already exists with different parameters")

	// ErrStorageUnavailable means an immediate durable write failed. The
	// mutation is committed in the ledger but was not acknowledged.
	ErrStorageUnavailable = errors.New("durable storage unavailable")
)
