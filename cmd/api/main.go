package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/config"
	"github.com/zhouzirui/shopally-web/backend/internal/handler"
	"github.com/zhouzirui/shopally-web/backend/internal/logger"
	"github.com/zhouzirui/shopally-web/backend/internal/model/alert"
	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
	"github.com/zhouzirui/shopally-web/backend/internal/service/session"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()
	zap.ReplaceGlobals(logg)

	if envErr != nil {
		logg.Info("no .env file loaded, using process environment", zap.Error(envErr))
	}

	store, closeStore, err := openStore(ctx, cfg.Store, logg)
	if err != nil {
		logg.Fatal("failed to open session store", zap.Error(err))
	}
	defer closeStore()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logg.Named("backend"))
	registry := session.NewRegistry(cfg.Session.IdleTTL, session.DeviceEngines(store, client, logg.Named("engine")))

	router := handler.NewRouter(handler.Deps{
		Backend:         client,
		Alerts:          alert.NewMemoryStore(),
		Sessions:        registry,
		Logger:          logg,
		DefaultLanguage: cfg.Backend.DefaultLanguage,
	})

	logg.Info("backend configured",
		zap.String("apiBase", cfg.Backend.BaseURL),
		zap.Duration("timeout", cfg.Backend.Timeout),
		zap.String("store", cfg.Store.Driver),
	)

	startServer(ctx, cfg.Server, router, logg)
}

// openStore 根据配置选择内存或 Redis 存储。
func openStore(ctx context.Context, cfg config.StoreConfig, logg *zap.Logger) (storage.Store, func(), error) {
	if !cfg.UsesRedis() {
		return storage.NewMemoryStore(cfg.TTL), func() {}, nil
	}

	client, err := storage.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logg.Warn("close redis", zap.Error(err))
		}
	}
	return storage.NewRedisStore(client, cfg.Prefix, cfg.TTL, logg.Named("store")), closeFn, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logg *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logg.Info("ShopAlly web backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logg.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
