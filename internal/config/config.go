// Package config loads process settings from the environment and the
// account list from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr      string `env:"LEDGER_HTTP_ADDR,default=:8080"`
	LedgerAddr    string `env:"LEDGER_UDP_ADDR,default=127.0.0.1:7070"`
	ClientAddr    string `env:"LEDGER_CLIENT_ADDR,default=127.0.0.1:0"`
	LogDir        string `env:"LEDGER_LOG_DIR,default=./data/logs"`
	AccountsFile  string `env:"LEDGER_ACCOUNTS_FILE"`
	StatementSize int    `env:"LEDGER_STATEMENT_SIZE,default=10"`

	RPCTimeout time.Duration `env:"LEDGER_RPC_TIMEOUT,default=2s"`

	Batch BatchConfig
	Store StoreConfig
	Kafka KafkaConfig
	Log   LogConfig
}

type BatchConfig struct {
	Interval    time.Duration `env:"LEDGER_FLUSH_INTERVAL,default=1s"`
	Threshold   int64         `env:"LEDGER_BATCH_THRESHOLD,default=100"`
	MaxAttempts int           `env:"LEDGER_BATCH_MAX_ATTEMPTS,default=3"`
	Reconcile   bool          `env:"LEDGER_RECONCILE,default=true"`
}

type StoreConfig struct {
	Driver      string `env:"LEDGER_STORE_DRIVER,default=memory"`
	PostgresDSN string `env:"DATABASE_URL"`
	SQLitePath  string `env:"LEDGER_SQLITE_PATH,default=./data/ledger.db"`
}

type KafkaConfig struct {
	Brokers string `env:"KAFKA_BROKERS"` // comma separated, empty disables events
	Topic   string `env:"KAFKA_TOPIC,default=transaction_accepted"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Pretty bool   `env:"LOG_PRETTY,default=false"`
}

// BrokerList splits Brokers, dropping empty items.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// DefaultAccounts is the account set used when no accounts file is given.
func DefaultAccounts() []models.Account {
	limits := []int64{100000, 80000, 1000000, 10000000, 500000}
	accounts := make([]models.Account, len(limits))
	for i, limit := range limits {
		accounts[i] = models.Account{ID: i + 1, CreditLimit: limit, LogRecordSize: 64}
	}
	return accounts
}

// Load reads envFile when it exists, then decodes the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.StatementSize <= 0 {
		return fmt.Errorf("statement size must be positive, got %d", c.StatementSize)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive, got %s", c.RPCTimeout)
	}
	return nil
}

type accountsFile struct {
	Accounts []models.Account `yaml:"accounts"`
}

// Accounts returns the configured account list.
func (c *Config) Accounts() ([]models.Account, error) {
	if c.AccountsFile == "" {
		return DefaultAccounts(), nil
	}
	return LoadAccounts(c.AccountsFile)
}

func LoadAccounts(path string) ([]models.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file %s lists no accounts", path)
	}

	seen := make(map[int]bool, len(f.Accounts))
	for i, a := range f.Accounts {
		if a.ID <= 0 {
			return nil, fmt.Errorf("accounts[%d]: id must be positive, got %d", i, a.ID)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("account %d listed twice", a.ID)
		}
		seen[a.ID] = true
		if a.CreditLimit < 0 {
			return nil, fmt.Errorf("account %d: credit limit must not be negative", a.ID)
		}
		if a.LogRecordSize == 0 {
			f.Accounts[i].LogRecordSize = 64
		}
	}
	return f.Accounts, nil
}
