// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings except the ones with security weight
// (postgres URL, token secret), which are required.
//
// # Configuration Structure
//
// Server settings:
//
//	WORKBASE_HOST="0.0.0.0"
//	WORKBASE_PORT="8080"
//	WORKBASE_HEALTH_PORT="9090"
//	WORKBASE_READ_TIMEOUT="15s"
//	WORKBASE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	WORKBASE_POSTGRES_URL="postgres://localhost/workbase"
//	WORKBASE_POSTGRES_MAX_CONNS="25"
//	WORKBASE_POSTGRES_TIMEOUT="10s"
//
// Redis settings (optional, backs the distributed login rate limiter):
//
//	WORKBASE_REDIS_URL="redis://localhost:6379"
//	WORKBASE_REDIS_POOL_SIZE="10"
//
// Auth settings:
//
//	WORKBASE_TOKEN_SECRET="..."     # required, at least 32 bytes
//	WORKBASE_TOKEN_TTL="30m"
//	WORKBASE_TOKEN_ISSUER="workbase"
//	WORKBASE_BCRYPT_COST="12"
//	WORKBASE_LOGIN_RATE_LIMIT="10"  # attempts per IP per minute
//
// Observability settings:
//
//	WORKBASE_LOG_LEVEL="info"  # debug, info, warn, error
//	WORKBASE_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/auth: Uses auth configuration
//   - pkg/observability: Uses observability configuration
package config
