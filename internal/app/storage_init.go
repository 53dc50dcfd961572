package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopbot/internal/storage/postgres"
)

// initJournal выбирает хранилище журнала продаж. Store возвращается только для postgres.
func initJournal(ctx context.Context, cfg JournalConfig, logger *log.Entry) (domain.JournalRepository, *postgres.Store, error) {
	switch cfg.Driver {
	case "", JournalMemory:
		return memory.NewJournalRepository(), nil, nil
	case JournalPostgres:
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("journal driver %q requires a DSN", JournalPostgres)
		}
		store, err := postgres.Open(ctx, cfg.DSN, postgres.WithMaxOpenConns(cfg.MaxConns))
		if err != nil {
			return nil, nil, fmt.Errorf("open journal store: %w", err)
		}
		if cfg.AutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, nil, fmt.Errorf("migrate journal store: %w", err)
			}
			logger.Info("journal migrations applied")
		}
		return postgres.NewJournalRepository(store), store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
}

// initOutbox хранит outbox рядом с журналом: в postgres, если он подключён.
func initOutbox(store *postgres.Store) domain.OutboxRepository {
	if store != nil {
		return postgres.NewOutboxRepository(store)
	}
	return memory.NewOutboxRepository()
}
