package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/workbasehq/workbase/pkg/api"
	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/auth"
	"github.com/workbasehq/workbase/pkg/config"
	"github.com/workbasehq/workbase/pkg/middleware"
	"github.com/workbasehq/workbase/pkg/observability"
	"github.com/workbasehq/workbase/pkg/rbac"
	"github.com/workbasehq/workbase/pkg/storage/postgres"
	"github.com/workbasehq/workbase/pkg/workspaces"
)

// trialPeriod is the trial window granted to newly registered
// workspaces.
const trialPeriod = 14 * 24 * time.Hour

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", cfg.Observability.ServiceVersion).Info("Starting workbase")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("workbase exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	db, err := postgres.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := rbac.Seed(ctx, db); err != nil {
		return err
	}
	logger.Info("Database ready")

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Redis is optional; without it the distributed limiter is skipped
	// and the in-process limiter still bounds login abuse.
	var redisClient *postgres.RedisClient
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Redis connected")
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL, cfg.Auth.TokenIssuer)
	if err != nil {
		return err
	}

	tenants := workspaces.NewService(db, trialPeriod)
	auditStore := audit.NewStore(db)

	limiterCfg := middleware.LoginRateLimitConfig()
	if cfg.Auth.LoginRateLimit > 0 {
		limiterCfg.Requests = cfg.Auth.LoginRateLimit
	}
	limiter, err := middleware.NewRateLimiter(limiterCfg)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Logger:       logger,
		Metrics:      metrics,
		Users:        auth.NewUserStore(db),
		Hasher:       auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:       tokens,
		Tenants:      tenants,
		Roles:        rbac.NewStore(db),
		Auditor:      auditStore,
		LoginLimiter: middleware.NewRateLimitMiddleware(limiter, "login", metrics),
	}
	if redisClient != nil {
		deps.DistributedLoginLimiter = middleware.NewDistributedRateLimitMiddleware(
			middleware.NewDistributedRateLimiter(redisClient, limiterCfg, "ratelimit"),
			"login_distributed", logger, metrics,
		)
	}
	server := api.NewServer(deps)

	// Background sweeps: lapsed invitations hourly, audit retention
	// daily.
	invitationCron := tenants.StartInvitationSweeper(logger)
	defer invitationCron.Stop()
	auditCron := auditStore.StartRetentionSweeper(logger)
	defer auditCron.Stop()

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()
	if metrics != nil {
		postgres.StartPoolMetrics(poolCtx, db, metrics, 0)
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so probes and scrapes
	// never compete with (or expose) the API surface.
	healthMux := http.NewServeMux()
	var redisConn *redis.Client
	if redisClient != nil {
		redisConn = redisClient.GetClient()
	}
	checker := observability.NewHealthChecker(db, redisConn, cfg.Observability.ServiceVersion)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API listener started")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health listener started")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
		sm.RegisterShutdownFunc(healthServer.Shutdown)
		sm.RegisterShutdownFunc(func(context.Context) error {
			invitationCron.Stop()
			auditCron.Stop()
			cancelPool()
			return nil
		})
		return sm.WaitForShutdown()
	})

	return group.Wait()
}
