package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/config"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	accounts := config.DefaultAccounts()

	for _, cfg := range []config.StoreConfig{
		{Driver: config.DriverMemory},
		{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			store, closer, err := openStore(ctx, cfg, true, zerolog.Nop())
			require.NoError(t, err)
			defer closer.Close()

			require.NoError(t, registerAccounts(ctx, store, accounts))
			inserted, err := store.InsertTransactions(ctx, []models.Transaction{{
				TxID: 1, AccountID: 1, Amount: 10, BalanceAfter: 10, Kind: models.KindCredit, Description: "x",
			}}, true)
			require.NoError(t, err)
			assert.Len(t, inserted, 1)

			bal, err := store.Balance(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(10), bal)
		})
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, _, err := openStore(context.Background(), config.StoreConfig{Driver: "oracle"}, false, zerolog.Nop())
	assert.Error(t, err)
}

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"ledger", "api", "migrate"})

	api, _, err := root.Find([]string{"api"})
	require.NoError(t, err)
	assert.NotNil(t, api.Flags().Lookup("remote"))
}
