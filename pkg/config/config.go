// Package config loads service configuration from APTS_* environment
// variables with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kidega/apartments/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
	Redis       RedisConfig   `yaml:"redis"`
	Auth        AuthConfig    `yaml:"auth"`
	Files       FilesConfig   `yaml:"files"`
	LogLevel    string        `yaml:"log_level"`
	CORSOrigins []string      `yaml:"cors_origins"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	HealthPort      string        `yaml:"health_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds PostgreSQL settings.
type StorageConfig struct {
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

// AuthConfig holds token and rate limit settings.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// FilesConfig holds document storage settings.
type FilesConfig struct {
	DocumentRoot string `yaml:"document_root"`
}

// Load reads configuration from the environment. When APTS_CONFIG_FILE
// is set, the YAML file is applied first and env vars override it.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("APTS_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			PostgresMaxConns: 20,
			PostgresTimeout:  10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		Auth: AuthConfig{
			AccessTokenTTL:  30 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			RateLimit:       10,
			RateLimitWindow: 15 * time.Minute,
		},
		Files: FilesConfig{
			DocumentRoot: "/var/apartments/documents",
		},
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("APTS_HOST", c.Server.Host)
	c.Server.Port = getEnv("APTS_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("APTS_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("APTS_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("APTS_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("APTS_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("APTS_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Storage.PostgresURL = getEnv("APTS_POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.PostgresMaxConns = getEnvInt("APTS_POSTGRES_MAX_CONNS", c.Storage.PostgresMaxConns)
	c.Storage.PostgresTimeout = getEnvDuration("APTS_POSTGRES_TIMEOUT", c.Storage.PostgresTimeout)

	c.Redis.URL = getEnv("APTS_REDIS_URL", c.Redis.URL)
	c.Redis.PoolSize = getEnvInt("APTS_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Auth.JWTSecret = getEnv("APTS_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessTokenTTL = getEnvDuration("APTS_ACCESS_TOKEN_TTL", c.Auth.AccessTokenTTL)
	c.Auth.RefreshTokenTTL = getEnvDuration("APTS_REFRESH_TOKEN_TTL", c.Auth.RefreshTokenTTL)
	c.Auth.RateLimit = getEnvInt("APTS_RATE_LIMIT", c.Auth.RateLimit)
	c.Auth.RateLimitWindow = getEnvDuration("APTS_RATE_LIMIT_WINDOW", c.Auth.RateLimitWindow)

	c.Files.DocumentRoot = getEnv("APTS_DOCUMENT_ROOT", c.Files.DocumentRoot)
	c.LogLevel = getEnv("APTS_LOG_LEVEL", c.LogLevel)
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("APTS_POSTGRES_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("APTS_REDIS_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("APTS_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("APTS_JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.RateLimit <= 0 {
		return fmt.Errorf("APTS_RATE_LIMIT must be positive")
	}
	return nil
}

// StorageConfig converts to the storage package's Config.
func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		PostgresURL:      c.Storage.PostgresURL,
		PostgresMaxConns: c.Storage.PostgresMaxConns,
		PostgresTimeout:  c.Storage.PostgresTimeout,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
