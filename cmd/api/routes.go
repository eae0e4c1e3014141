package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourusername/bookflow/internal/auth"
	"github.com/yourusername/bookflow/internal/catalog"
	"github.com/yourusername/bookflow/internal/config"
	"github.com/yourusername/bookflow/internal/metrics"
)

// pinger は疎通確認できる依存です。
type pinger interface {
	Ping(ctx context.Context) error
}

type routeDeps struct {
	cfg      *config.Config
	store    pinger
	auth     *auth.Manager
	catalog  *catalog.Handler
	gatherer prometheus.Gatherer
}

// healthHandler はヘルスチェックエンドポイントのハンドラーです。
func healthHandler(store pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := store.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": "bookflow-api",
			"version": "0.1.0",
		})
	}
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	return cors.New(corsConfig)
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, deps routeDeps) {
	router.Use(corsMiddleware(deps.cfg))

	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", healthHandler(deps.store))
	if deps.cfg.MetricsEnabled {
		router.GET("/metrics", metrics.Handler(deps.gatherer))
	}

	api := router.Group("/api")
	api.Use(deps.auth.SessionMiddleware())
	{
		registerLimiter := auth.NewRateLimiter(deps.cfg.RegisterRateLimit)

		authRoutes := api.Group("/auth")
		{
			// 登録・ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/register", registerLimiter.Middleware(), deps.auth.Register)
			authRoutes.POST("/login", deps.auth.Login)
			// ログアウトはセッションがなくても成功扱い
			authRoutes.POST("/logout", deps.auth.Logout)
			authRoutes.GET("/profile", deps.auth.RequireLogin(), deps.auth.Profile)
		}

		deps.catalog.RegisterRoutes(api, deps.auth)
	}
}
