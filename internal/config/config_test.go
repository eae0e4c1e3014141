package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		GinMode:          "debug",
		SessionBackend:   SessionBackendMemory,
		SessionReapCron:  "*/10 * * * *",
		StorageDriver:    StorageDriverMemory,
		OverdueSweepCron: "*/15 * * * *",
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SESSION_BACKEND", "memory")
	for _, key := range []string{"PORT", "SESSION_TTL_MINUTES", "BCRYPT_COST", "OVERDUE_SWEEP_CRON", "SESSION_REAP_CRON", "GIN_MODE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "*/15 * * * *", cfg.OverdueSweepCron)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("SESSION_BACKEND", "bolt")
	t.Setenv("SESSION_BOLT_PATH", "/tmp/s.db")
	t.Setenv("SESSION_TTL_MINUTES", "15")
	t.Setenv("CSRF_ENABLED", "true")
	t.Setenv("BCRYPT_COST", "not-a-number")
	t.Setenv("GIN_MODE", "")
	t.Setenv("OVERDUE_SWEEP_CRON", "")
	t.Setenv("SESSION_REAP_CRON", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, SessionBackendBolt, cfg.SessionBackend)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL())
	assert.True(t, cfg.CSRFEnabled)
	assert.Equal(t, 10, cfg.BcryptCost)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.SessionBackend = "etcd" }, "unknown SESSION_BACKEND"},
		{"postgres without url", func(c *Config) { c.StorageDriver = StorageDriverPostgres }, "DATABASE_URL is required"},
		{"bad cron", func(c *Config) { c.OverdueSweepCron = "every minute" }, "invalid OVERDUE_SWEEP_CRON"},
		{"release without secret", func(c *Config) {
			c.GinMode = "release"
			c.SessionBackend = SessionBackendBolt
			c.SessionBoltPath = "s.db"
		}, "SESSION_SECRET is required"},
		{"release with memory sessions", func(c *Config) {
			c.GinMode = "release"
			c.SessionSecret = "0123456789abcdef0123456789abcdef"
		}, "SESSION_BACKEND=memory is not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: "http://a.test, http://b.test,,"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins())
}
