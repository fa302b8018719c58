// Package config collects process settings from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"stock-ledger/internal/core"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type Config struct {
	Store         string // LEDGER_STORE
	DatabaseURL   string // DATABASE_URL
	DBMaxConns    int32  // DB_MAX_CONNS
	SQLitePath    string // SQLITE_PATH
	NegativeStock core.NegativeStockPolicy
	RedisAddr     string // REDIS_ADDR; empty disables the Redis notifier
	RedisPassword string // REDIS_PASSWORD
	ReorderChan   string // REORDER_CHANNEL
	OpenAIKey     string // OPENAI_API_KEY
	OpenAIModel   string // OPENAI_MODEL
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Store:         strings.ToLower(strings.TrimSpace(getenv("LEDGER_STORE"))),
		DatabaseURL:   getenv("DATABASE_URL"),
		SQLitePath:    getenv("SQLITE_PATH"),
		NegativeStock: core.NegativeStockPolicy(strings.ToLower(strings.TrimSpace(getenv("LEDGER_NEGATIVE_STOCK_POLICY")))),
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		ReorderChan:   getenv("REORDER_CHANNEL"),
		OpenAIKey:     getenv("OPENAI_API_KEY"),
		OpenAIModel:   getenv("OPENAI_MODEL"),
	}

	if cfg.Store == "" {
		cfg.Store = StorePostgres
		if cfg.DatabaseURL == "" {
			cfg.Store = StoreSQLite
		}
	}
	switch cfg.Store {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("LEDGER_STORE=postgres requires DATABASE_URL")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			cfg.SQLitePath = "stock-ledger.db"
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("LEDGER_STORE must be postgres, sqlite or memory, got %q", cfg.Store)
	}

	switch cfg.NegativeStock {
	case "":
		cfg.NegativeStock = core.NegativeStockClamp
	case core.NegativeStockClamp, core.NegativeStockReject:
	default:
		return Config{}, fmt.Errorf("LEDGER_NEGATIVE_STOCK_POLICY must be clamp or reject, got %q", cfg.NegativeStock)
	}

	if v := getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("DB_MAX_CONNS must be a positive integer, got %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}

	return cfg, nil
}
