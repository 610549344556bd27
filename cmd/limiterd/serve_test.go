package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manenim/tenant-limiter/internal/config"
	"github.com/manenim/tenant-limiter/pkg/limiter"
)

func TestOpenStore(t *testing.T) {
	store, err := openStore(&config.Config{Store: config.StoreConfig{Driver: "memory"}})
	require.NoError(t, err)
	assert.IsType(t, &limiter.MemoryStore{}, store)

	store, err = openStore(&config.Config{
		Store:    config.StoreConfig{Driver: "sqlite"},
		Database: config.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "limiter.db"), MaxOpenConns: 1},
	})
	require.NoError(t, err)
	assert.IsType(t, &limiter.SQLStore{}, store)
	require.NoError(t, store.Close())

	_, err = openStore(&config.Config{Store: config.StoreConfig{Driver: "etcd"}})
	assert.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)
	svc := limiter.NewService(limiter.NewMemoryStore(), limiter.WithLogger(log))

	require.NoError(t, bootstrap(ctx, svc, &config.BootstrapConfig{}, log))
	_, err := svc.Policy(ctx)
	assert.ErrorIs(t, err, limiter.ErrNotInitialized, "disabled bootstrap must not create a policy")

	cfg := &config.BootstrapConfig{
		Admin:         strings.Repeat("ab", 32),
		MaxRequests:   10,
		WindowSeconds: 60,
		BurstLimit:    10,
	}
	require.NoError(t, bootstrap(ctx, svc, cfg, log))
	require.NoError(t, bootstrap(ctx, svc, cfg, log), "second bootstrap is a no-op")

	p, err := svc.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), p.Admin.String())
	assert.Equal(t, uint64(10), p.MaxRequests)

	cfg.BurstLimit = 1
	err = bootstrap(ctx, limiter.NewService(limiter.NewMemoryStore(), limiter.WithLogger(log)), cfg, log)
	assert.ErrorIs(t, err, limiter.ErrInvalidConfig)
}
