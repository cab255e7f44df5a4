package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/workbasehq/workbase/pkg/config"
	"github.com/workbasehq/workbase/pkg/observability"
)

// Connect opens the PostgreSQL connection pool and verifies it with a ping.
// The pool is shared by every store in the service; auth decisions always
// read through it rather than any cache.
func Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// StartPoolMetrics starts a background goroutine that periodically copies
// connection pool statistics into the Prometheus gauges. It stops when the
// context is cancelled.
func StartPoolMetrics(ctx context.Context, db *sql.DB, metrics *observability.Metrics, interval time.Duration) {
	if interval == 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
				metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
				metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())

			case <-ctx.Done():
				return
			}
		}
	}()
}
