package repositories

import (
	"context"
	"testing"

	"workhub/internal/infrastructure/repositories/memory"
	"workhub/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewCredentialStore_Memory(t *testing.T) {
	cfg := config.DefaultConfig()

	store, err := NewCredentialStore(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewCredentialStore_UnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"

	_, err := NewCredentialStore(context.Background(), cfg, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, `unknown database driver "sqlite"`)
}

func TestNewCredentialStore_PostgresNeedsDSN(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "postgres"

	_, err := NewCredentialStore(context.Background(), cfg, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "dsn is not set")
}
