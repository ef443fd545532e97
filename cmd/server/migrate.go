package main

import (
	"fmt"

	"github.com/sheikh-saqib/account-ledger/internal/logging"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the durable storage schema and register the configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := logging.Component(a.logger, "migrate")

			accounts, err := a.cfg.Accounts()
			if err != nil {
				return err
			}
			store, closer, err := openStore(ctx, a.cfg.Store, true, logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := registerAccounts(ctx, store, accounts); err != nil {
				return err
			}
			for _, acc := range accounts {
				bal, err := store.Balance(ctx, acc.ID)
				if err != nil {
					return fmt.Errorf("read durable balance of account %d: %w", acc.ID, err)
				}
				logger.Info().Int("account_id", acc.ID).Int64("durable_balance", bal).Msg("account registered")
			}
			logger.Info().Int("accounts", len(accounts)).Msg("schema applied")
			return nil
		},
	}
}
