package rpc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// Request payload field widths.
const (
	accountWidth = 8
	amountWidth  = 20
	sizeWidth    = 10
	statusWidth  = 3
)

// Response status codes, the first field of every response payload.
const (
	statusOK       = "OK"
	statusRejected = "REJ"
	statusUnknown  = "UNK"
	statusConflict = "CFL"
	statusStorage  = "STO"
	statusError    = "ERR"
)

// ErrRemote is a fault reported by the ledger service.
var ErrRemote = errors.New("ledger service error")

func encodeCreate(a models.Account) string {
	return fmt.Sprintf("%-*d%-*d%-*d",
		accountWidth, a.ID, amountWidth, -a.CreditLimit, sizeWidth, a.LogRecordSize)
}

func decodeCreate(p string) (models.Account, error) {
	id, err := intField(p, 0, accountWidth)
	if err != nil {
		return models.Account{}, err
	}
	minBalance, err := intField(p, accountWidth, amountWidth)
	if err != nil {
		return models.Account{}, err
	}
	size, err := intField(p, accountWidth+amountWidth, sizeWidth)
	if err != nil {
		return models.Account{}, err
	}
	return models.Account{ID: int(id), CreditLimit: -minBalance, LogRecordSize: int(size)}, nil
}

func encodeMutate(accountID int, delta int64, description string) string {
	return fmt.Sprintf("%-*d%-*d%s", accountWidth, accountID, amountWidth, delta, description)
}

func decodeMutate(p string) (accountID int, delta int64, description string, err error) {
	id, err := intField(p, 0, accountWidth)
	if err != nil {
		return 0, 0, "", err
	}
	delta, err = intField(p, accountWidth, amountWidth)
	if err != nil {
		return 0, 0, "", err
	}
	if len(p) > accountWidth+amountWidth {
		description = p[accountWidth+amountWidth:]
	}
	return int(id), delta, description, nil
}

func encodeGet(accountID int) string {
	return fmt.Sprintf("%-*d", accountWidth, accountID)
}

func decodeGet(p string) (int, error) {
	id, err := intField(p, 0, accountWidth)
	return int(id), err
}

func intField(p string, start, width int) (int64, error) {
	if len(p) < start {
		return 0, fmt.Errorf("%w: payload %q too short", ErrBadFrame, p)
	}
	end := start + width
	if end > len(p) {
		end = len(p)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(p[start:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return v, nil
}

// encodeResult renders {status:<3}{comma separated fields}.
func encodeResult(status string, fields ...int64) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strconv.FormatInt(f, 10)
	}
	return fmt.Sprintf("%-*s%s", statusWidth, status, strings.Join(parts, ","))
}

func encodeFailure(err error) string {
	switch {
	case errors.Is(err, models.ErrRejected):
		return encodeResult(statusRejected)
	case errors.Is(err, models.ErrUnknownAccount):
		return encodeResult(statusUnknown)
	case errors.Is(err, models.ErrAccountConflict):
		return encodeResult(statusConflict)
	}
	msg := fmt.Sprintf("%-*s%s", statusWidth, statusError, err.Error())
	if len(msg) > ResponsePayloadWidth {
		msg = msg[:ResponsePayloadWidth]
	}
	return msg
}

// decodeResult splits a response payload into its numeric fields, turning a
// failure status into the matching error. A storage failure still carries
// its fields.
func decodeResult(p string, want int) ([]int64, error) {
	status := strings.TrimSpace(field(p, 0, statusWidth))
	rest := ""
	if len(p) > statusWidth {
		rest = p[statusWidth:]
	}

	var statusErr error
	switch status {
	case statusOK:
	case statusStorage:
		statusErr = models.ErrStorageUnavailable
	case statusRejected:
		return nil, models.ErrRejected
	case statusUnknown:
		return nil, models.ErrUnknownAccount
	case statusConflict:
		return nil, models.ErrAccountConflict
	case statusError:
		return nil, fmt.Errorf("%w: %s", ErrRemote, strings.TrimSpace(rest))
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadFrame, status)
	}

	if want == 0 {
		return nil, statusErr
	}
	parts := strings.Split(strings.TrimSpace(rest), ",")
	if len(parts) != want {
		return nil, fmt.Errorf("%w: want %d result fields, got %q", ErrBadFrame, want, rest)
	}
	out := make([]int64, want)
	for i, s := range parts {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		out[i] = v
	}
	return out, statusErr
}

func field(p string, start, width int) string {
	if start >= len(p) {
		return ""
	}
	end := start + width
	if end > len(p) {
		end = len(p)
	}
	return p[start:end]
}
