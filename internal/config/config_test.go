package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.StatementSize)
	assert.Equal(t, 2*time.Second, cfg.RPCTimeout)
	assert.Equal(t, time.Second, cfg.Batch.Interval)
	assert.Equal(t, 3, cfg.Batch.MaxAttempts)
	assert.True(t, cfg.Batch.Reconcile)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Empty(t, cfg.Kafka.BrokerList())

	accounts, err := cfg.Accounts()
	require.NoError(t, err)
	assert.Equal(t, DefaultAccounts(), accounts)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LEDGER_RPC_TIMEOUT", "500ms")
	t.Setenv("LEDGER_BATCH_THRESHOLD", "0")
	t.Setenv("LEDGER_STORE_DRIVER", "sqlite")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.RPCTimeout)
	assert.Equal(t, int64(0), cfg.Batch.Threshold)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.BrokerList())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_STATEMENT_SIZE=4\n"), 0o600))
	t.Setenv("LEDGER_STATEMENT_SIZE", "")
	os.Unsetenv("LEDGER_STATEMENT_SIZE")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.StatementSize)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("LEDGER_STORE_DRIVER", "postgres")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("LEDGER_STORE_DRIVER", "oracle")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - id: 1
    credit_limit: 1000
  - id: 2
    credit_limit: 0
    log_record_size: 96
`), 0o600))

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	assert.Equal(t, []models.Account{
		{ID: 1, CreditLimit: 1000, LogRecordSize: 64},
		{ID: 2, CreditLimit: 0, LogRecordSize: 96},
	}, accounts)
}

func TestLoadAccountsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":    "accounts: []\n",
		"dup.yaml":      "accounts:\n  - id: 1\n  - id: 1\n",
		"negative.yaml": "accounts:\n  - id: 1\n    credit_limit: -5\n",
		"zero-id.yaml":  "accounts:\n  - id: 0\n",
		"not-yaml.yaml": "accounts: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadAccounts(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadAccounts(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAccountsNamesTheBadEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  - id: 4\n  - id: -2\n"), 0o600))

	_, err := LoadAccounts(path)
	require.Error(t, err)
	assert.Equal(t, "accounts[1]: id must be positive, got -2", err.Error())
}
