package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "API_BASE", "BACKEND_TIMEOUT", "DEFAULT_LANGUAGE", "STORE_DRIVER", "REDIS_URL", "STORE_PREFIX", "STORE_TTL", "SESSION_IDLE_TTL", "APP_ENV", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "en", cfg.Backend.DefaultLanguage)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.False(t, cfg.Store.UsesRedis())
	assert.Equal(t, "shopally:", cfg.Store.Prefix)
	assert.Equal(t, time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Production)
}

func TestLoadServerAddrVariants(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = loadServerConfig()
	assert.Error(t, err)
}

func TestLoadBackendConfig(t *testing.T) {
	t.Setenv("API_BASE", "https://api.shopally.test/")
	t.Setenv("BACKEND_TIMEOUT", "15")
	t.Setenv("DEFAULT_LANGUAGE", "AM")

	cfg, err := loadBackendConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.shopally.test", cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "am", cfg.DefaultLanguage)

	t.Setenv("API_BASE", "not a url")
	_, err = loadBackendConfig()
	assert.Error(t, err)
}

func TestLoadStoreConfigRequiresRedisURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "")
	_, err := loadStoreConfig()
	assert.Error(t, err)

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STORE_TTL", "24h")
	cfg, err := loadStoreConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, 24*time.Hour, cfg.TTL)

	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = loadStoreConfig()
	assert.Error(t, err)
}

func TestLoadInvalidDurations(t *testing.T) {
	t.Setenv("SESSION_IDLE_TTL", "soon")
	_, err := loadSessionConfig()
	assert.Error(t, err)

	t.Setenv("SESSION_IDLE_TTL", "0")
	_, err = loadSessionConfig()
	assert.Error(t, err)
}

func TestLoadLogConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := loadLogConfig()
	assert.Error(t, err)

	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("LOG_FILE", "logs/web.log")
	cfg, err := loadLogConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Production)
	assert.Equal(t, "logs/web.log", cfg.File)
}
