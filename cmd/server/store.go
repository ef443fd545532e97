package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/account-ledger/internal/config"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/account-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/account-ledger/internal/storage/sqlite"
)

type durableStore interface {
	interfaces.DurableStore
	CreateAccount(ctx context.Context, account models.Account) error
	Balance(ctx context.Context, accountID int) (int64, error)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the configured durable store. Postgres is migrated
// when migrate is set; SQLite always applies its schema on open.
func openStore(ctx context.Context, cfg config.StoreConfig, migrate bool, logger zerolog.Logger) (durableStore, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := postgres.NewPostgresLedgerStore(db)
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		logger.Info().Str("driver", cfg.Driver).Msg("durable store ready")
		return store, db, nil
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info().Str("driver", cfg.Driver).Str("path", cfg.SQLitePath).Msg("durable store ready")
		return store, store, nil
	case config.DriverMemory:
		logger.Warn().Msg("durable store is in memory, transactions are lost on exit")
		return memory.NewMemoryLedgerStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// registerAccounts makes every account known to the durable store.
func registerAccounts(ctx context.Context, store durableStore, accounts []models.Account) error {
	for _, a := range accounts {
		if err := store.CreateAccount(ctx, a); err != nil {
			return fmt.Errorf("register account %d: %w", a.ID, err)
		}
	}
	return nil
}
