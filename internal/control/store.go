package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/erc20-detector/internal/core/config"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
	"github.com/vietddude/erc20-detector/internal/infra/storage/memory"
	"github.com/vietddude/erc20-detector/internal/infra/storage/postgres"
)

// OpenStore returns the contract store selected by cfg: PostgreSQL when a database
// URL is set, memory otherwise. The returned db is nil in memory mode.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (storage.ContractStore, *postgres.DB, error) {
	if !cfg.UseDatabase() {
		slog.Info("Using Memory storage")
		return memory.NewContractRepo(memory.NewMemoryStorage(cfg.InFlightTimeout)), nil, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	slog.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
	return postgres.NewContractRepo(db, cfg.InFlightTimeout), db, nil
}
