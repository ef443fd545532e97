package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/batch"
	"github.com/sheikh-saqib/account-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/account-ledger/internal/ledger"
	"github.com/sheikh-saqib/account-ledger/internal/logging"
	"github.com/sheikh-saqib/account-ledger/internal/metrics"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/rpc"
	"github.com/sheikh-saqib/account-ledger/internal/taillog"
	"github.com/spf13/cobra"
)

func newLedgerCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Run the authoritative ledger and serve it over UDP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			accounts, err := a.cfg.Accounts()
			if err != nil {
				return err
			}

			node, err := startLocal(ctx, a, accounts)
			if err != nil {
				return err
			}
			defer node.close()

			for _, acc := range node.ledger.Accounts() {
				bal, err := node.ledger.Get(ctx, acc.ID)
				if err != nil {
					return err
				}
				a.logger.Info().Int("account_id", acc.ID).Int64("balance", bal.Balance).
					Uint64("version", bal.Version).Msg("serving account")
			}

			conn, err := rpc.Listen(ctx, a.cfg.LedgerAddr)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				go serveMetrics(ctx, metricsAddr, a.logger)
			}
			return rpc.NewServer(conn, node.ledger, logging.Component(a.logger, "rpc")).Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	return cmd
}

// localNode is an in-process ledger with its tail logs and durable writer.
type localNode struct {
	ledger *ledger.Ledger
	logs   *taillog.Store
	store  durableStore
	close  func()
}

// startLocal opens storage, recovers every account from its tail log and
// starts the durable writer. close waits for the writer's final flush.
func startLocal(ctx context.Context, a *app, accounts []models.Account) (*localNode, error) {
	store, storeCloser, err := openStore(ctx, a.cfg.Store, true, logging.Component(a.logger, "store"))
	if err != nil {
		return nil, err
	}
	if err := registerAccounts(ctx, store, accounts); err != nil {
		storeCloser.Close()
		return nil, err
	}

	var opts []batch.Option
	var publisher *kafka.Publisher
	if brokers := a.cfg.Kafka.BrokerList(); len(brokers) > 0 {
		publisher = kafka.NewPublisher(brokers, a.cfg.Kafka.Topic)
		opts = append(opts, batch.WithPublisher(publisher))
	}
	writer := batch.NewWriter(store, batch.Config{
		Interval:    a.cfg.Batch.Interval,
		Threshold:   a.cfg.Batch.Threshold,
		MaxAttempts: a.cfg.Batch.MaxAttempts,
		Reconcile:   a.cfg.Batch.Reconcile,
	}, logging.Component(a.logger, "batch"), opts...)

	logs := taillog.NewStore(a.cfg.LogDir, logging.Component(a.logger, "taillog"))
	l := ledger.NewLedger(logs, logging.Component(a.logger, "ledger"), ledger.WithSink(writer))
	if err := ledger.Bootstrap(ctx, l, accounts); err != nil {
		logs.Close()
		storeCloser.Close()
		return nil, err
	}

	writerCtx, stopWriter := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = writer.Run(writerCtx)
	}()

	node := &localNode{ledger: l, logs: logs, store: store}
	node.close = func() {
		stopWriter()
		<-done
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("close kafka publisher")
			}
		}
		if err := logs.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close tail logs")
		}
		if err := storeCloser.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close durable store")
		}
	}
	return node, nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := serveHTTP(ctx, &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}, logger); err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger zerolog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
