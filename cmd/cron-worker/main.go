package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/checkout-engine/internal/cart"
	"github.com/angelmondragon/checkout-engine/internal/checkout"
	"github.com/angelmondragon/checkout-engine/internal/cron"
	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db"
	"github.com/angelmondragon/checkout-engine/pkg/gateway/providers"
	"github.com/angelmondragon/checkout-engine/pkg/instance"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/metrics"
	"github.com/angelmondragon/checkout-engine/pkg/migrate"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/redis"
)

const (
	serviceName         = "cron-worker"
	lockKeyFormat       = "checkout:cron-worker:lock:%s:%s"
	maintenanceInterval = 24 * time.Hour
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	sweeper, err := newSweeper(cfg, logg, dbClient, redisClient, jobMetrics)
	requireResource(ctx, logg, "session sweeper", err)
	maintenance, err := newMaintenance(cfg, logg, dbClient, redisClient, jobMetrics)
	requireResource(ctx, logg, "maintenance cron", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(runCtx, "starting cron worker")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return maintenance.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

// newSweeper runs session expiry at the configured sweep cadence.
func newSweeper(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.CronJobMetrics) (*cron.Service, error) {
	conn := dbClient.DB()
	gateways, err := providers.NewRegistry(context.Background(), cfg, logg, nil)
	if err != nil {
		return nil, fmt.Errorf("payment gateways: %w", err)
	}
	sessions, err := checkout.NewService(checkout.ServiceParams{
		Repo:        checkout.NewRepository(conn),
		Tx:          dbClient,
		Quotes:      quotes.NewRepository(conn),
		Carts:       cart.NewRepository(conn),
		Gateways:    gateways,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:      logg,
		SessionTTL:  cfg.Checkout.SessionTTL,
		CallbackURL: cfg.Checkout.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}
	job, err := cron.NewSessionExpiryJob(cron.SessionExpiryJobParams{Logger: logg, Sessions: sessions})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(job)
	if err != nil {
		return nil, err
	}
	// a holder that dies blocks at most one tick
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env, "sweep"), cfg.Checkout.SweepInterval)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    m,
		Interval:   cfg.Checkout.SweepInterval,
		JobTimeout: cfg.Checkout.SweepInterval,
	})
}

func newMaintenance(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.CronJobMetrics) (*cron.Service, error) {
	job, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(job)
	if err != nil {
		return nil, err
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env, "maintenance"), 0)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
		Interval: maintenanceInterval,
	})
}

func lockKey(env, name string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env, name)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
