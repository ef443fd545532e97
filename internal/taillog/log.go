// Package taillog is an append-only, fixed-width record log per account that
// is only ever read from its end.
package taillog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/metrics"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// Log is the tail log of one account. Appends must be serialized by the
// caller; Tail may run concurrently with them.
type Log struct {
	accountID  int
	path       string
	recordSize int64
	w          *os.File // nil when opened read-only

	mu sync.Mutex // guards the lazy open of r
	r  *os.File

	logger zerolog.Logger
}

// Path returns the log file of account id under dir.
func Path(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.log", id))
}

// Open opens (creating if needed) the log of account for appending.
func Open(dir string, account models.Account, logger zerolog.Logger) (*Log, error) {
	if account.LogRecordSize < MinRecordSize {
		return nil, fmt.Errorf("account %d: log record size %d below minimum %d",
			account.ID, account.LogRecordSize, MinRecordSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l := newLog(dir, account, logger)
	w, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tail log %s: %w", l.path, err)
	}
	if err := l.dropTornTail(w); err != nil {
		w.Close()
		return nil, err
	}
	l.w = w
	return l, nil
}

// dropTornTail cuts a partial record left at the end of the file by an
// interrupted append, so new records start on a record boundary. The file
// is left untouched when the last whole record does not decode either, as
// that points at a record size change rather than a torn write.
func (l *Log) dropTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat tail log: %w", err)
	}
	size := info.Size()
	aligned := size / l.recordSize * l.recordSize
	if aligned == size {
		return nil
	}

	if aligned > 0 {
		buf := make([]byte, l.recordSize)
		if _, err := f.ReadAt(buf, aligned-l.recordSize); err != nil {
			return fmt.Errorf("read tail log: %w", err)
		}
		if _, err := Decode(buf); err != nil {
			return fmt.Errorf("%s is %d bytes, not a multiple of %d, and its last record does not decode: %w",
				l.path, size, l.recordSize, err)
		}
	}

	if err := f.Truncate(aligned); err != nil {
		return fmt.Errorf("truncate torn tail log record: %w", err)
	}
	l.logger.Warn().Int64("dropped_bytes", size-aligned).Int64("size", aligned).Msg("dropped torn record at end of tail log")
	return nil
}

// OpenReadOnly returns a log that can only be tailed. The file does not
// need to exist yet.
func OpenReadOnly(dir string, account models.Account, logger zerolog.Logger) (*Log, error) {
	if account.LogRecordSize < MinRecordSize {
		return nil, fmt.Errorf("account %d: log record size %d below minimum %d",
			account.ID, account.LogRecordSize, MinRecordSize)
	}
	return newLog(dir, account, logger), nil
}

func newLog(dir string, account models.Account, logger zerolog.Logger) *Log {
	return &Log{
		accountID:  account.ID,
		path:       Path(dir, account.ID),
		recordSize: int64(account.LogRecordSize),
		logger:     logger.With().Int("account_id", account.ID).Logger(),
	}
}

// Append writes e as one record at the end of the file.
func (l *Log) Append(e models.LedgerEntry) error {
	if l.w == nil {
		return fmt.Errorf("tail log %s is read-only", l.path)
	}
	rec, err := Encode(e, int(l.recordSize))
	if err != nil {
		return err
	}
	n, err := l.w.Write(rec)
	if err == nil && n != len(rec) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 {
			l.unwrite(int64(n))
		}
		return fmt.Errorf("append tail log: %w", err)
	}
	return nil
}

// unwrite removes the last n bytes, the part of a record a failed append
// managed to write.
func (l *Log) unwrite(n int64) {
	info, err := l.w.Stat()
	if err == nil {
		err = l.w.Truncate(info.Size() - n)
	}
	if err != nil {
		l.logger.Error().Err(err).Int64("bytes", n).Msg("could not remove partial tail log record")
	}
}

// Tail returns up to max of the most recent entries, newest first. It reads
// only the last max records' worth of bytes. A trailing partial record is
// ignored and malformed records are skipped.
func (l *Log) Tail(max int) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	if max <= 0 {
		return entries, nil
	}
	f, err := l.reader()
	if err != nil || f == nil {
		return entries, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat tail log: %w", err)
	}

	end := info.Size() / l.recordSize * l.recordSize
	start := end - int64(max)*l.recordSize
	if start < 0 {
		start = 0
	}
	if end == start {
		return entries, nil
	}

	buf := make([]byte, end-start)
	n, err := f.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read tail log: %w", err)
	}
	buf = buf[:int64(n)/l.recordSize*l.recordSize]

	first := start / l.recordSize
	for off := int64(len(buf)) - l.recordSize; off >= 0; off -= l.recordSize {
		e, err := Decode(buf[off : off+l.recordSize])
		if err != nil {
			metrics.RecordMalformedRecord()
			l.logger.Warn().Err(err).Int64("record", first+off/l.recordSize).Msg("skipping tail log record")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Recovery is what a restart can rebuild from a log.
type Recovery struct {
	Last    models.LedgerEntry
	Found   bool
	Skipped int64 // malformed records newer than Last
}

// Recover returns the newest record that decodes, scanning back past
// malformed ones. A non-empty log in which no record decodes is an error.
func (l *Log) Recover() (Recovery, error) {
	var rec Recovery
	f, err := l.reader()
	if err != nil || f == nil {
		return rec, err
	}
	n, err := l.count()
	if err != nil {
		return rec, err
	}

	buf := make([]byte, l.recordSize)
	for i := n - 1; i >= 0; i-- {
		if _, err := f.ReadAt(buf, i*l.recordSize); err != nil {
			return rec, fmt.Errorf("read tail log: %w", err)
		}
		e, err := Decode(buf)
		if err != nil {
			metrics.RecordMalformedRecord()
			l.logger.Warn().Err(err).Int64("record", i).Msg("skipping malformed record during recovery")
			rec.Skipped++
			continue
		}
		rec.Last, rec.Found = e, true
		return rec, nil
	}
	if n > 0 {
		return rec, fmt.Errorf("%w: none of the %d records in %s decode", ErrMalformedRecord, n, l.path)
	}
	return rec, nil
}

// count returns the number of complete records in the file.
func (l *Log) count() (int64, error) {
	f, err := l.reader()
	if err != nil || f == nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat tail log: %w", err)
	}
	return info.Size() / l.recordSize, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.r != nil {
		errs = append(errs, l.r.Close())
		l.r = nil
	}
	if l.w != nil {
		errs = append(errs, l.w.Close())
		l.w = nil
	}
	return errors.Join(errs...)
}

// reader returns the read handle, or nil if the file does not exist yet.
func (l *Log) reader() (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.r != nil {
		return l.r, nil
	}
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tail log %s: %w", l.path, err)
	}
	l.r = f
	return f, nil
}
