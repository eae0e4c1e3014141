// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// セッションバックエンド
const (
	SessionBackendRedis  = "redis"
	SessionBackendBolt   = "bolt"
	SessionBackendMemory = "memory"
)

// ストレージドライバー
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionSecret     string // セッションクッキー署名用の秘密鍵
	SessionTTLMinutes int    // セッションの有効期間（分）
	SessionBackend    string // redis, bolt, memory
	SessionRedisURL   string // セッション保存用Redis接続URL
	SessionBoltPath   string // bbolt ファイルのパス
	SessionReapCron   string // 期限切れセッション掃除のスケジュール（bolt/memory）
	CSRFEnabled       bool   // 変更系リクエストで X-CSRF-Token を検証するか

	// 認証設定
	BcryptCost        int // bcrypt のワークファクタ
	LoginMaxAttempts  int // ロックまでのログイン失敗回数（IP単位）
	RegisterRateLimit int // 登録エンドポイントの1分あたり上限（IP単位）

	// ストレージ設定
	StorageDriver string // postgres, memory
	DatabaseURL   string // PostgreSQL接続URL

	// ジョブ/キュー設定
	QueueRedisURL    string // Asynq用Redis接続URL（空なら同期実行）
	OverdueSweepCron string // 延滞判定ジョブのスケジュール

	// 監視
	MetricsEnabled bool   // /metrics を公開するか
	LogLevel       string // debug, info, warn, error
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// セッション設定
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionTTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 60),
		SessionBackend:    strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendRedis)),
		SessionRedisURL:   getEnv("SESSION_REDIS_URL", "redis://127.0.0.1:6379/1"),
		SessionBoltPath:   getEnv("SESSION_BOLT_PATH", "sessions.db"),
		SessionReapCron:   getEnv("SESSION_REAP_CRON", "*/10 * * * *"),
		CSRFEnabled:       getEnvAsBool("CSRF_ENABLED", false),

		// 認証設定
		BcryptCost:        getEnvAsInt("BCRYPT_COST", 10),
		LoginMaxAttempts:  getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		RegisterRateLimit: getEnvAsInt("REGISTER_RATE_LIMIT", 10),

		// ストレージ設定
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		// ジョブ/キュー設定
		QueueRedisURL:    getEnv("QUEUE_REDIS_URL", ""),
		OverdueSweepCron: getEnv("OVERDUE_SWEEP_CRON", "*/15 * * * *"),

		// 監視
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// SessionTTL はセッションの有効期間を返します。
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Release は release モードかどうかを返します。
func (c *Config) Release() bool {
	return c.GinMode == "release"
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case SessionBackendRedis:
		if c.SessionRedisURL == "" {
			return fmt.Errorf("SESSION_REDIS_URL is required when SESSION_BACKEND=redis")
		}
	case SessionBackendBolt:
		if c.SessionBoltPath == "" {
			return fmt.Errorf("SESSION_BOLT_PATH is required when SESSION_BACKEND=bolt")
		}
	case SessionBackendMemory:
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q (want redis, bolt or memory)", c.SessionBackend)
	}

	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want postgres or memory)", c.StorageDriver)
	}

	if _, err := cron.ParseStandard(c.OverdueSweepCron); err != nil {
		return fmt.Errorf("invalid OVERDUE_SWEEP_CRON %q: %w", c.OverdueSweepCron, err)
	}
	if _, err := cron.ParseStandard(c.SessionReapCron); err != nil {
		return fmt.Errorf("invalid SESSION_REAP_CRON %q: %w", c.SessionReapCron, err)
	}

	// ローカル開発では秘密鍵は任意
	// 本番環境では厳格にチェックする想定
	if c.Release() {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in release mode")
		}
		if c.SessionBackend == SessionBackendMemory {
			return fmt.Errorf("SESSION_BACKEND=memory is not allowed in release mode")
		}
		if c.StorageDriver == StorageDriverMemory {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
