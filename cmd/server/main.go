// Package main is the entry point for the inventario API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"inventario/internal/config"
	"inventario/internal/domain/auth"
	"inventario/internal/domain/catalogs/product"
	"inventario/internal/domain/stocktake"
	v1 "inventario/internal/infrastructure/http/v1"
	"inventario/internal/infrastructure/http/v1/handlers"
	"inventario/internal/infrastructure/lock"
	"inventario/internal/infrastructure/numerator"
	"inventario/internal/infrastructure/storage/postgres"
	"inventario/internal/infrastructure/storage/postgres/catalog_repo"
	"inventario/internal/infrastructure/storage/postgres/stocktake_repo"
	"inventario/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting inventario server", "version", version, "env", cfg.App.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool).WithStatementTimeout(cfg.Database.StatementTimeout)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	// --- Adjustment lock ---
	var (
		rdb    redis.UniversalClient
		locker stocktake.Locker = stocktake.LocalLocker{}
	)
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalw("failed to ping redis", "addr", cfg.Redis.Addr, "error", err)
		}
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.Infow("redis adjustment lock enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.LockTTL)
	} else {
		log.Warn("REDIS_ADDR not set, adjustment lock disabled")
	}

	// --- Domain services ---
	catalog := product.NewService(catalog_repo.NewProductRepo(txManager), txManager)
	stocktakes := stocktake.NewService(stocktake.ServiceConfig{
		Repo:      stocktake_repo.NewSessionRepo(txManager),
		Catalog:   catalog,
		Stock:     catalog,
		Numerator: numerator.New(pool),
		TxManager: txManager,
		Locker:    locker,
		Audit:     auditService,
		History:   auditService,
	})

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtConfig.AccessTokenTTL = cfg.JWT.AccessTokenTTL
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log.WithComponent("http"),
		JWTValidator: jwtService,
		Stocktakes:   stocktakes,
		Products:     catalog,
		Health:       handlers.NewHealthHandler(pool, rdb, version),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
