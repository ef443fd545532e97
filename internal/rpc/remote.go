package rpc

import (
	"context"
	"fmt"

	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// RemoteLedger is the Ledger of another process, reached through a Client.
type RemoteLedger struct {
	client *Client
}

func NewRemoteLedger(client *Client) *RemoteLedger {
	return &RemoteLedger{client: client}
}

func (r *RemoteLedger) Create(ctx context.Context, account models.Account) error {
	resp, err := r.client.Call(ctx, CmdCreate, encodeCreate(account))
	if err != nil {
		return err
	}
	_, err = decodeResult(resp, 0)
	return err
}

func (r *RemoteLedger) Apply(ctx context.Context, accountID int, delta int64, description string) (models.ApplyResult, error) {
	resp, err := r.client.Call(ctx, CmdMutate, encodeMutate(accountID, delta, description))
	if err != nil {
		return models.ApplyResult{}, err
	}
	fields, err := decodeResult(resp, 4)
	if fields == nil {
		return models.ApplyResult{}, err
	}
	return models.ApplyResult{
		AccountID:    accountID,
		BalanceAfter: fields[0],
		CreditLimit:  fields[1],
		TxID:         fields[2],
		Version:      uint64(fields[3]),
	}, err
}

func (r *RemoteLedger) Get(ctx context.Context, accountID int) (models.Balance, error) {
	resp, err := r.client.Call(ctx, CmdGet, encodeGet(accountID))
	if err != nil {
		return models.Balance{}, err
	}
	fields, err := decodeResult(resp, 3)
	if err != nil {
		return models.Balance{}, fmt.Errorf("get account %d: %w", accountID, err)
	}
	return models.Balance{
		AccountID:   accountID,
		Balance:     fields[0],
		CreditLimit: fields[1],
		Version:     uint64(fields[2]),
	}, nil
}

var _ interfaces.Ledger = (*RemoteLedger)(nil)
