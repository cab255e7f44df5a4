package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/workbasehq/workbase/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig holds Redis configuration. Redis backs the distributed
// login rate limiter and is optional; an empty URL disables it.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// AuthConfig holds session token and credential settings
type AuthConfig struct {
	// TokenSecret signs session tokens (HS256). Required, and rotating
	// it invalidates every outstanding session.
	TokenSecret string

	// TokenTTL bounds how long an issued session token is accepted
	TokenTTL time.Duration

	// TokenIssuer is embedded in and checked on every token
	TokenIssuer string

	// BcryptCost controls password hash work factor
	BcryptCost int

	// LoginRateLimit is the allowed login attempts per IP per minute
	LoginRateLimit int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	ServiceVersion string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WORKBASE_HOST", "0.0.0.0"),
		Port:            getEnv("WORKBASE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WORKBASE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WORKBASE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WORKBASE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WORKBASE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("WORKBASE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("WORKBASE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("WORKBASE_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("WORKBASE_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("WORKBASE_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		QueryTimeout:    getEnvDuration("WORKBASE_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("WORKBASE_REDIS_URL", ""),
		Password:   getEnv("WORKBASE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("WORKBASE_REDIS_DB", 0),
		MaxRetries: getEnvInt("WORKBASE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("WORKBASE_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		TokenSecret:    getEnv("WORKBASE_TOKEN_SECRET", ""),
		TokenTTL:       getEnvDuration("WORKBASE_TOKEN_TTL", 30*time.Minute),
		TokenIssuer:    getEnv("WORKBASE_TOKEN_ISSUER", "workbase"),
		BcryptCost:     getEnvInt("WORKBASE_BCRYPT_COST", 12),
		LoginRateLimit: getEnvInt("WORKBASE_LOGIN_RATE_LIMIT", 10),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLevel(getEnv("WORKBASE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("WORKBASE_METRICS_ENABLED", true),
		ServiceVersion: getEnv("WORKBASE_SERVICE_VERSION", "1.0.0"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate auth config
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}
	if len(c.Auth.TokenSecret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 16 {
		return fmt.Errorf("bcrypt cost must be between 10 and 16")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
