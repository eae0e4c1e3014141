package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourusername/bookflow/internal/auth"
	"github.com/yourusername/bookflow/internal/catalog"
	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/database"
	"github.com/yourusername/bookflow/internal/metrics"
	"github.com/yourusername/bookflow/internal/password"
	"github.com/yourusername/bookflow/internal/session"
	"github.com/yourusername/bookflow/internal/storage"
	"github.com/yourusername/bookflow/internal/storage/memory"
	"github.com/yourusername/bookflow/internal/storage/postgres"
	"github.com/yourusername/bookflow/internal/users"
)

// runServer は依存関係を組み立て、ctx がキャンセルされるまで HTTP サーバーを動かします。
func runServer(ctx context.Context, cfg *config.Config) error {
	gin.SetMode(cfg.GinMode)

	// 1. ストレージ
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. セッションストア
	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewCollector(registry)
	}

	// 4. サービス
	hasher := password.NewHasher(cfg.BcryptCost)
	userService := users.NewService(store, hasher)
	authenticator, err := auth.NewAuthenticator(userService, sessions, hasher)
	if err != nil {
		return err
	}
	authManager := auth.NewManager(cfg, authenticator, recorder)

	// 5. バックグラウンドジョブ
	jobManager, err := setupJobs(cfg, sessions, store, recorder)
	if err != nil {
		return err
	}
	userService.SetDeleteListener(jobManager)
	if err := jobManager.StartWorkers(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := jobManager.Shutdown(shutdownCtx); err != nil {
			slog.Error("job manager shutdown failed", "error", err)
		}
	}()

	// 6. ルーター
	router := gin.New()
	router.Use(gin.Recovery())
	if !cfg.Release() {
		router.Use(gin.Logger())
	}
	setupRoutes(router, routeDeps{
		cfg:      cfg,
		store:    store,
		auth:     authManager,
		catalog:  catalog.NewHandler(catalog.NewBooks(store), catalog.NewAuthors(store), catalog.NewLoans(store, store, store), userService),
		gatherer: registry,
	})

	// 7. HTTP サーバー
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("mode", cfg.GinMode),
			slog.String("storage", cfg.StorageDriver),
			slog.String("sessions", cfg.SessionBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// openStore は STORAGE_DRIVER に応じたストアを開きます。postgres の場合は起動時にマイグレーションを適用します。
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		slog.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	default:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		return postgres.New(ctx, cfg.DatabaseURL)
	}
}

// openSessions は SESSION_BACKEND に応じたセッションストアと、その後始末関数を返します。
func openSessions(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	ttl := cfg.SessionTTL()
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		slog.Warn("using in-memory sessions; all users are logged out on restart")
		return session.NewMemoryStore(ttl), func() {}, nil
	case config.SessionBackendBolt:
		store, err := session.OpenBoltStore(cfg.SessionBoltPath, ttl)
		if err != nil {
			return nil, nil, err
		}
		return store, closer("bolt session store", store.Close), nil
	default:
		store, err := session.NewRedisStoreFromURL(ctx, cfg.SessionRedisURL, ttl)
		if err != nil {
			return nil, nil, err
		}
		return store, closer("redis session store", store.Close), nil
	}
}

func closer(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			slog.Error("failed to close "+name, "error", err)
		}
	}
}
