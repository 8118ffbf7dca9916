package repositories

import (
	"context"
	"fmt"

	"workhub/internal/core/ports"
	"workhub/internal/infrastructure/repositories/memory"
	"workhub/internal/infrastructure/repositories/postgres"
	"workhub/pkg/config"

	"go.uber.org/zap"
)

// NewCredentialStore opens the store selected by database.driver. With
// postgres and auto_migrate set, pending migrations are applied first.
func NewCredentialStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ports.CredentialStore, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil

	case "postgres":
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(cfg.Database.DSN, "up"); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info("database migrations applied")
		}

		db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store, err := postgres.NewStore(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Infow("using postgres store", "max_open_conns", cfg.Database.MaxOpenConns)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
