package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/app"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/config"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/layoutclient"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/logger"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/positions"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/search"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

type dataStore interface {
	app.LayoutBackend
	app.RecordStore
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadWithOverlay()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()

	var (
		backend dataStore
		index   app.PanelIndex
	)
	if strings.TrimSpace(cfg.BackendURL) != "" {
		zlog.Info("using remote layout backend", zap.String("url", cfg.BackendURL))
		backend = layoutclient.New(layoutclient.Options{
			BaseURL: cfg.BackendURL,
			Token:   cfg.APIToken,
			Timeout: cfg.BackendTimeout,
			Retries: cfg.BackendRetries,
		}, zlog)
	} else {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
		if err != nil {
			zlog.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, zlog)
		if err != nil {
			zlog.Fatal("migrations failed", zap.Error(err))
		}
		zlog.Info("migrations applied", zap.Strings("versions", applied))

		backend = store.NewPostgresStore(db)

		var meiliClient *search.Meili
		if strings.TrimSpace(cfg.MeiliURL) != "" {
			meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, zlog)
			defer meiliClient.Close()
		}
		index = search.NewService(meiliClient, search.NewPgLabels(db), zlog)
	}

	var kv positions.KV
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisKV, err := positions.NewRedisKV(ctx, cfg.RedisURL)
		if err != nil {
			zlog.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisKV.Close()
		kv = redisKV
		zlog.Info("using redis for the position cache")
	} else {
		zlog.Info("position cache kept in memory")
	}

	service := app.New(cfg, backend, kv, index, zlog)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, zlog)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("panel layout API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
	if err := service.FlushPositions(shutdownCtx); err != nil {
		zlog.Warn("position cache flush failed", zap.Error(err))
	}
}
