package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Store   StoreConfig
	Session SessionConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Backend: backend, Store: store, Session: session, Log: log}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig 描述 ShopAlly 后端 API 的连接参数。
type BackendConfig struct {
	BaseURL         string
	Timeout         time.Duration
	DefaultLanguage string
}

func loadBackendConfig() (BackendConfig, error) {
	base := strings.TrimRight(getEnvOrDefault("API_BASE", "http://localhost:8080"), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return BackendConfig{}, fmt.Errorf("invalid API_BASE value: %q", base)
	}

	timeout, err := parseDurationEnv("BACKEND_TIMEOUT", 60*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		BaseURL:         base,
		Timeout:         timeout,
		DefaultLanguage: strings.ToLower(getEnvOrDefault("DEFAULT_LANGUAGE", "en")),
	}, nil
}

// StoreConfig 描述会话快照的持久化后端。
type StoreConfig struct {
	Driver   string
	RedisURL string
	Prefix   string
	TTL      time.Duration
}

// UsesRedis 表示是否使用 Redis 作为共享存储。
func (c StoreConfig) UsesRedis() bool {
	return c.Driver == "redis"
}

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory"))
	if driver != "memory" && driver != "redis" {
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	ttl, err := parseDurationEnv("STORE_TTL", 0)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Driver:   driver,
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		Prefix:   getEnvOrDefault("STORE_PREFIX", "shopally:"),
		TTL:      ttl,
	}
	if cfg.UsesRedis() && cfg.RedisURL == "" {
		return StoreConfig{}, fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
	}
	return cfg, nil
}

// SessionConfig 控制每个设备会话引擎的生命周期。
type SessionConfig struct {
	IdleTTL time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	idle, err := parseDurationEnv("SESSION_IDLE_TTL", time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	if idle <= 0 {
		return SessionConfig{}, fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", idle)
	}
	return SessionConfig{IdleTTL: idle}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Production bool
	Level      string
	File       string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value: %q", level)
	}

	return LogConfig{
		Production: strings.EqualFold(os.Getenv("APP_ENV"), "production"),
		Level:      level,
		File:       strings.TrimSpace(os.Getenv("LOG_FILE")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// parseDurationEnv 同时接受 Go duration 字符串和纯秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
