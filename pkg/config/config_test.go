package config

import (
	"os"
	"testing"
	"time"

	"github.com/workbasehq/workbase/pkg/observability"
)

// testSecret satisfies the 32 byte minimum
const testSecret = "0123456789abcdef0123456789abcdef"

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
		{
			name:         "returns true for 'TRUE' (case insensitive)",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "TRUE",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns parsed int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "returns default for invalid int",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "invalid",
			want:         10,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOT_SET",
			defaultValue: 10,
			envValue:     "",
			want:         10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	// Save current env and restore after test
	originalEnv := map[string]string{
		"WORKBASE_HOST":             os.Getenv("WORKBASE_HOST"),
		"WORKBASE_PORT":             os.Getenv("WORKBASE_PORT"),
		"WORKBASE_READ_TIMEOUT":     os.Getenv("WORKBASE_READ_TIMEOUT"),
		"WORKBASE_WRITE_TIMEOUT":    os.Getenv("WORKBASE_WRITE_TIMEOUT"),
		"WORKBASE_IDLE_TIMEOUT":     os.Getenv("WORKBASE_IDLE_TIMEOUT"),
		"WORKBASE_SHUTDOWN_TIMEOUT": os.Getenv("WORKBASE_SHUTDOWN_TIMEOUT"),
		"WORKBASE_HEALTH_PORT":      os.Getenv("WORKBASE_HEALTH_PORT"),
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ServerConfig{
				Host:            "0.0.0.0",
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				HealthPort:      "9090",
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"WORKBASE_HOST":             "localhost",
				"WORKBASE_PORT":             "3000",
				"WORKBASE_READ_TIMEOUT":     "30s",
				"WORKBASE_WRITE_TIMEOUT":    "30s",
				"WORKBASE_IDLE_TIMEOUT":     "120s",
				"WORKBASE_SHUTDOWN_TIMEOUT": "60s",
				"WORKBASE_HEALTH_PORT":      "9091",
			},
			want: ServerConfig{
				Host:            "localhost",
				Port:            "3000",
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 60 * time.Second,
				HealthPort:      "9091",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for k := range originalEnv {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadServerConfig()
			if got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestLoadAuthConfig tests the loadAuthConfig function
func TestLoadAuthConfig(t *testing.T) {
	envVars := []string{
		"WORKBASE_TOKEN_SECRET",
		"WORKBASE_TOKEN_TTL",
		"WORKBASE_TOKEN_ISSUER",
		"WORKBASE_BCRYPT_COST",
		"WORKBASE_LOGIN_RATE_LIMIT",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadAuthConfig()
		if cfg.TokenSecret != "" {
			t.Errorf("TokenSecret = %v, want empty", cfg.TokenSecret)
		}
		if cfg.TokenTTL != 30*time.Minute {
			t.Errorf("TokenTTL = %v, want 30m", cfg.TokenTTL)
		}
		if cfg.TokenIssuer != "workbase" {
			t.Errorf("TokenIssuer = %v, want workbase", cfg.TokenIssuer)
		}
		if cfg.BcryptCost != 12 {
			t.Errorf("BcryptCost = %v, want 12", cfg.BcryptCost)
		}
		if cfg.LoginRateLimit != 10 {
			t.Errorf("LoginRateLimit = %v, want 10", cfg.LoginRateLimit)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WORKBASE_TOKEN_SECRET", testSecret)
		os.Setenv("WORKBASE_TOKEN_TTL", "1h")
		os.Setenv("WORKBASE_TOKEN_ISSUER", "workbase-staging")
		os.Setenv("WORKBASE_BCRYPT_COST", "14")
		os.Setenv("WORKBASE_LOGIN_RATE_LIMIT", "5")

		cfg := loadAuthConfig()
		if cfg.TokenSecret != testSecret {
			t.Errorf("TokenSecret = %v, want %v", cfg.TokenSecret, testSecret)
		}
		if cfg.TokenTTL != time.Hour {
			t.Errorf("TokenTTL = %v, want 1h", cfg.TokenTTL)
		}
		if cfg.TokenIssuer != "workbase-staging" {
			t.Errorf("TokenIssuer = %v, want workbase-staging", cfg.TokenIssuer)
		}
		if cfg.BcryptCost != 14 {
			t.Errorf("BcryptCost = %v, want 14", cfg.BcryptCost)
		}
		if cfg.LoginRateLimit != 5 {
			t.Errorf("LoginRateLimit = %v, want 5", cfg.LoginRateLimit)
		}
	})
}

// TestLoadDatabaseConfig tests the loadDatabaseConfig function
func TestLoadDatabaseConfig(t *testing.T) {
	envVars := []string{
		"WORKBASE_POSTGRES_URL",
		"WORKBASE_POSTGRES_MAX_CONNS",
		"WORKBASE_POSTGRES_IDLE_CONNS",
		"WORKBASE_POSTGRES_CONN_LIFETIME",
		"WORKBASE_POSTGRES_TIMEOUT",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads postgres config from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("WORKBASE_POSTGRES_URL", "postgres://localhost/workbase")
		os.Setenv("WORKBASE_POSTGRES_MAX_CONNS", "50")
		os.Setenv("WORKBASE_POSTGRES_IDLE_CONNS", "10")
		os.Setenv("WORKBASE_POSTGRES_TIMEOUT", "20s")

		cfg := loadDatabaseConfig()
		if cfg.URL != "postgres://localhost/workbase" {
			t.Errorf("URL = %v, want postgres://localhost/workbase", cfg.URL)
		}
		if cfg.MaxOpenConns != 50 {
			t.Errorf("MaxOpenConns = %v, want 50", cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns != 10 {
			t.Errorf("MaxIdleConns = %v, want 10", cfg.MaxIdleConns)
		}
		if cfg.QueryTimeout != 20*time.Second {
			t.Errorf("QueryTimeout = %v, want 20s", cfg.QueryTimeout)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadDatabaseConfig()
		if cfg.MaxOpenConns != 25 {
			t.Errorf("MaxOpenConns = %v, want 25", cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime != 5*time.Minute {
			t.Errorf("ConnMaxLifetime = %v, want 5m", cfg.ConnMaxLifetime)
		}
	})
}

// TestLoadObservabilityConfig tests the loadObservabilityConfig function
func TestLoadObservabilityConfig(t *testing.T) {
	envVars := []string{
		"WORKBASE_LOG_LEVEL",
		"WORKBASE_METRICS_ENABLED",
		"WORKBASE_SERVICE_VERSION",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ObservabilityConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ObservabilityConfig{
				LogLevel:       observability.InfoLevel,
				MetricsEnabled: true,
				ServiceVersion: "1.0.0",
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"WORKBASE_LOG_LEVEL":       "debug",
				"WORKBASE_METRICS_ENABLED": "false",
				"WORKBASE_SERVICE_VERSION": "2.3.1",
			},
			want: ObservabilityConfig{
				LogLevel:       observability.DebugLevel,
				MetricsEnabled: false,
				ServiceVersion: "2.3.1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadObservabilityConfig()
			if got != tt.want {
				t.Errorf("loadObservabilityConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// validTestConfig returns a Config that passes Validate
func validTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:       "8080",
			HealthPort: "9090",
		},
		Database: DatabaseConfig{
			URL: "postgres://localhost/workbase",
		},
		Auth: AuthConfig{
			TokenSecret: testSecret,
			TokenTTL:    30 * time.Minute,
			BcryptCost:  12,
		},
	}
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validTestConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("missing server port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.Port = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing health port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.HealthPort = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "health port is required" {
			t.Errorf("Validate() error = %v, want 'health port is required'", err.Error())
		}
	})

	t.Run("same server and health port", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Server.HealthPort = cfg.Server.Port

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "server port and health port must be different" {
			t.Errorf("Validate() error = %v, want 'server port and health port must be different'", err.Error())
		}
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Database.URL = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "postgres URL is required" {
			t.Errorf("Validate() error = %v, want 'postgres URL is required'", err.Error())
		}
	})

	t.Run("missing token secret", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Auth.TokenSecret = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "token secret is required" {
			t.Errorf("Validate() error = %v, want 'token secret is required'", err.Error())
		}
	})

	t.Run("short token secret", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Auth.TokenSecret = "too-short"

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "token secret must be at least 32 bytes" {
			t.Errorf("Validate() error = %v, want 'token secret must be at least 32 bytes'", err.Error())
		}
	})

	t.Run("non-positive token ttl", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Auth.TokenTTL = 0

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "token TTL must be positive" {
			t.Errorf("Validate() error = %v, want 'token TTL must be positive'", err.Error())
		}
	})

	t.Run("bcrypt cost out of range", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Auth.BcryptCost = 4

		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() expected error, got nil")
		}
		if err.Error() != "bcrypt cost must be between 10 and 16" {
			t.Errorf("Validate() error = %v, want 'bcrypt cost must be between 10 and 16'", err.Error())
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	envVars := []string{
		"WORKBASE_PORT",
		"WORKBASE_HEALTH_PORT",
		"WORKBASE_POSTGRES_URL",
		"WORKBASE_TOKEN_SECRET",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"WORKBASE_PORT":         "8080",
				"WORKBASE_HEALTH_PORT":  "9090",
				"WORKBASE_POSTGRES_URL": "postgres://localhost/workbase",
				"WORKBASE_TOKEN_SECRET": testSecret,
			},
			wantErr: false,
		},
		{
			name: "invalid config - missing secret",
			env: map[string]string{
				"WORKBASE_PORT":         "8080",
				"WORKBASE_HEALTH_PORT":  "9090",
				"WORKBASE_POSTGRES_URL": "postgres://localhost/workbase",
			},
			wantErr: true,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"WORKBASE_PORT":         "8080",
				"WORKBASE_HEALTH_PORT":  "8080",
				"WORKBASE_POSTGRES_URL": "postgres://localhost/workbase",
				"WORKBASE_TOKEN_SECRET": testSecret,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear all env vars
			for _, k := range envVars {
				os.Unsetenv(k)
			}

			// Set test env vars
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
