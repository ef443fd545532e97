package main

import (
	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/config"
	"github.com/sheikh-saqib/account-ledger/internal/logging"
	"github.com/spf13/cobra"
)

// app is what every subcommand shares once flags are parsed.
type app struct {
	envFile string
	cfg     *config.Config
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Account ledger with a UDP ledger service and an HTTP front-end",
		Long: `server runs the parts of the account ledger:

  ledger   the authoritative ledger, served over UDP
  api      the HTTP front-end, in-process or against a remote ledger
  migrate  applies the durable storage schema`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(
		newLedgerCmd(a),
		newAPICmd(a),
		newMigrateCmd(a),
	)
	return cmd
}
