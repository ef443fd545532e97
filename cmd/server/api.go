package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sheikh-saqib/account-ledger/internal/api"
	"github.com/sheikh-saqib/account-ledger/internal/cache"
	"github.com/sheikh-saqib/account-ledger/internal/config"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/ledger"
	"github.com/sheikh-saqib/account-ledger/internal/logging"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/rpc"
	"github.com/sheikh-saqib/account-ledger/internal/statement"
	"github.com/sheikh-saqib/account-ledger/internal/taillog"
	"github.com/spf13/cobra"
)

func newAPICmd(a *app) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP front-end",
		Long: `api serves the HTTP front-end.

Without --remote the ledger runs in this process. With --remote every
mutation and balance read goes to the ledger service over UDP, and
statements are read from the shared tail log directory, falling back to
the durable store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			accounts, err := a.cfg.Accounts()
			if err != nil {
				return err
			}

			var (
				l       interfaces.Ledger
				sources []interfaces.EntrySource
			)
			if remote {
				front, err := connectRemote(ctx, a, accounts)
				if err != nil {
					return err
				}
				defer front.close()
				l, sources = front.ledger, front.sources
			} else {
				node, err := startLocal(ctx, a, accounts)
				if err != nil {
					return err
				}
				defer node.close()
				l, sources = node.ledger, []interfaces.EntrySource{node.logs, node.store}
			}

			svc := statement.NewService(l, cache.New(), a.cfg.StatementSize, logging.Component(a.logger, "statement"), sources...)
			handler := api.NewHandler(l, svc, logging.Component(a.logger, "api"))
			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serveHTTP(ctx, srv, logging.Component(a.logger, "http"))
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "use the ledger service at LEDGER_UDP_ADDR instead of an in-process ledger")
	return cmd
}

type remoteFront struct {
	ledger  *rpc.RemoteLedger
	sources []interfaces.EntrySource
	close   func()
}

// connectRemote dials the ledger service, creates the configured accounts
// on it and opens the read side of the shared tail logs.
func connectRemote(ctx context.Context, a *app, accounts []models.Account) (*remoteFront, error) {
	conn, err := rpc.Dial(ctx, a.cfg.ClientAddr, a.cfg.LedgerAddr)
	if err != nil {
		return nil, fmt.Errorf("dial ledger service: %w", err)
	}
	client := rpc.NewClient(conn, a.cfg.RPCTimeout, logging.Component(a.logger, "rpc"))
	remote := rpc.NewRemoteLedger(client)
	if err := ledger.Bootstrap(ctx, remote, accounts); err != nil {
		client.Close()
		return nil, err
	}

	logs := taillog.NewReadOnlyStore(a.cfg.LogDir, logging.Component(a.logger, "taillog"))
	for _, acc := range accounts {
		if _, err := logs.Add(acc); err != nil {
			logs.Close()
			client.Close()
			return nil, err
		}
	}
	sources := []interfaces.EntrySource{logs}

	// an in-memory store here would never see a write
	var storeCloser io.Closer = nopCloser{}
	if a.cfg.Store.Driver != config.DriverMemory {
		store, closer, err := openStore(ctx, a.cfg.Store, false, logging.Component(a.logger, "store"))
		if err != nil {
			a.logger.Warn().Err(err).Msg("durable store unavailable, statements read tail logs only")
		} else {
			sources = append(sources, store)
			storeCloser = closer
		}
	}

	return &remoteFront{
		ledger:  remote,
		sources: sources,
		close: func() {
			storeCloser.Close()
			logs.Close()
			client.Close()
		},
	}, nil
}
