package events

import (
	"context"
	"fmt"

	"workhub/internal/core/ports"
	"workhub/pkg/config"

	"go.uber.org/zap"
)

// NewQueue builds the queue selected by events.backend.
func NewQueue(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ports.EventQueue, error) {
	switch cfg.Events.Backend {
	case "", "memory":
		logger.Infow("using in-process event queue", "buffer", cfg.Events.Buffer)
		return NewMemoryQueue(cfg.Events.Buffer, logger), nil

	case "redis":
		client, err := NewRedisClient(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return nil, err
		}
		logger.Infow("using redis event queue",
			"address", cfg.Redis.Address,
			"channel", cfg.Events.Channel,
		)
		return NewRedisQueue(client, cfg.Events.Channel, logger), nil

	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}
}
