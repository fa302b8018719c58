package app

import (
	"context"
	"fmt"
	"log"

	"stock-ledger/internal/ai"
	"stock-ledger/internal/config"
	"stock-ledger/internal/core"
	"stock-ledger/internal/db"
	"stock-ledger/internal/notify"
	"stock-ledger/internal/store/memory"
	"stock-ledger/internal/store/postgres"
	"stock-ledger/internal/store/sqlite"
)

// Backend is an opened store with its catalog and reorder notifier.
type Backend struct {
	Store    core.Store
	Catalog  Catalog
	Notifier core.ReorderNotifier
	closers  []func()
}

func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// OpenBackend opens the store named by cfg.Store. The log notifier is always
// attached; Redis is added when REDIS_ADDR is set and reachable.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	b := &Backend{}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.Store = postgres.NewStore(pool)
		b.Catalog = postgres.NewCatalog(pool)
	case config.StoreSQLite:
		sqlDB, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { sqlDB.Close() })
		b.Store = sqlite.NewStore(sqlDB)
		b.Catalog = sqlite.NewCatalog(sqlDB)
	case config.StoreMemory:
		b.Store = memory.NewStore()
		b.Catalog = memory.NewCatalog()
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	notifiers := notify.Fanout{notify.LogNotifier{}}
	if cfg.RedisAddr != "" {
		client, err := notify.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("WARNING: %v. Reorder alerts go to the log only.", err)
		} else {
			b.closers = append(b.closers, func() { client.Close() })
			notifiers = append(notifiers, notify.NewRedisNotifier(client, cfg.ReorderChan))
		}
	}
	b.Notifier = notifiers
	return b, nil
}

// NewService wires the core services over an opened backend.
func NewService(b *Backend, cfg config.Config) ApplicationService {
	processor := core.NewTransactionProcessor(b.Store, b.Catalog, b.Catalog, core.ProcessorConfig{
		NegativeStock: cfg.NegativeStock,
		Notifier:      b.Notifier,
	})
	projection := core.NewBalanceProjection(b.Store, b.Catalog)
	ledger := core.NewLedgerReader(b.Store, 0)

	var agent ai.DraftInterpreter
	if cfg.OpenAIKey != "" {
		agent = ai.NewAgent(cfg.OpenAIKey, cfg.OpenAIModel)
	}
	return NewAppService(processor, projection, ledger, b.Catalog, agent)
}
