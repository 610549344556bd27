package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manenim/tenant-limiter/internal/config"
	"github.com/manenim/tenant-limiter/internal/database"
	"github.com/manenim/tenant-limiter/internal/httpapi"
	"github.com/manenim/tenant-limiter/internal/logger"
	"github.com/manenim/tenant-limiter/pkg/limiter"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Get()

	log.Info("starting limiterd",
		"version", version,
		"store", cfg.Store.Driver,
		"mode", cfg.Server.Mode)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := limiter.NewPrometheusRecorder(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	svc := limiter.NewService(store,
		limiter.WithRecorder(recorder),
		limiter.WithLogger(logger.WithComponent("limiter")),
	)

	if err := bootstrap(ctx, svc, &cfg.Bootstrap, log); err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      httpapi.NewRouter(svc, reg, logger.WithComponent("http")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited gracefully")
	return nil
}

// openStore builds the backend selected by store.driver.
func openStore(cfg *config.Config) (limiter.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return limiter.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		var opts []limiter.RedisOption
		if cfg.Redis.Prefix != "" {
			opts = append(opts, limiter.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.Timeout > 0 {
			opts = append(opts, limiter.WithTimeout(cfg.Redis.Timeout))
		}
		store, err := limiter.NewRedisStore(client, opts...)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, nil
	case "sqlite", "mysql":
		db, err := database.Open(cfg.Store.Driver, &cfg.Database)
		if err != nil {
			return nil, err
		}
		store, err := limiter.NewSQLStore(db)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.Close()
			}
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

// bootstrap seeds the policy from config. An existing policy is left as is.
func bootstrap(ctx context.Context, svc *limiter.Service, cfg *config.BootstrapConfig, log *slog.Logger) error {
	if !cfg.Enabled() {
		return nil
	}
	admin, err := limiter.ParseIdentity(cfg.Admin)
	if err != nil {
		return fmt.Errorf("invalid bootstrap admin: %w", err)
	}

	_, err = svc.Initialize(ctx, admin, limiter.Config{
		MaxRequests:   cfg.MaxRequests,
		WindowSeconds: cfg.WindowSeconds,
		BurstLimit:    cfg.BurstLimit,
	})
	if errors.Is(err, limiter.ErrAlreadyInitialized) {
		log.Info("policy already initialized, skipping bootstrap")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to bootstrap policy: %w", err)
	}
	return nil
}
