package taillog

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// MinRecordSize fits a record with small numbers and a one character description.
const MinRecordSize = 48

var (
	ErrMalformedRecord = errors.New("malformed tail log record")
	ErrRecordTooWide   = errors.New("entry does not fit the record size")
)

// Encode serializes e as one newline-terminated record of exactly size bytes:
//
//	tx_id,delta,balance_after,occurred_at,kind,description
//
// padded with NUL bytes, so a description keeps its own trailing spaces. The
// description is shortened when the line would not fit.
func Encode(e models.LedgerEntry, size int) ([]byte, error) {
	desc := strings.NewReplacer("\n", " ", "\x00", " ").Replace(e.Description)
	head := fmt.Sprintf("%d,%d,%d,%s,%s,",
		e.TxID, e.Delta, e.BalanceAfter, models.FormatTimestamp(e.OccurredAt), e.Kind)

	room := size - 1 - len(head)
	if room < 1 {
		return nil, fmt.Errorf("%w: tx %d needs more than %d bytes", ErrRecordTooWide, e.TxID, size)
	}
	for len(desc) > room {
		_, n := utf8.DecodeLastRuneInString(desc)
		desc = desc[:len(desc)-n]
	}
	if desc == "" && e.Description != "" {
		return nil, fmt.Errorf("%w: tx %d description does not fit", ErrRecordTooWide, e.TxID)
	}

	rec := make([]byte, size) // zeroed, so the padding is already in place
	copy(rec[copy(rec, head):], desc)
	rec[size-1] = '\n'
	return rec, nil
}

// Decode parses one record produced by Encode.
func Decode(rec []byte) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	if len(rec) == 0 || rec[len(rec)-1] != '\n' {
		return e, fmt.Errorf("%w: missing terminator", ErrMalformedRecord)
	}
	line := string(bytes.TrimRight(rec[:len(rec)-1], "\x00"))
	fields := strings.SplitN(line, ",", 6)
	if len(fields) != 6 {
		return e, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformedRecord, len(fields))
	}

	var err error
	if e.TxID, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return e, fmt.Errorf("%w: tx_id: %v", ErrMalformedRecord, err)
	}
	if e.Delta, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return e, fmt.Errorf("%w: delta: %v", ErrMalformedRecord, err)
	}
	if e.BalanceAfter, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return e, fmt.Errorf("%w: balance_after: %v", ErrMalformedRecord, err)
	}
	if e.OccurredAt, err = time.Parse(models.TimestampLayout, fields[3]); err != nil {
		return e, fmt.Errorf("%w: occurred_at: %v", ErrMalformedRecord, err)
	}
	e.Kind = models.Kind(fields[4])
	if !e.Kind.Valid() {
		return e, fmt.Errorf("%w: kind %q", ErrMalformedRecord, fields[4])
	}
	e.Description = fields[5]
	return e, nil
}
