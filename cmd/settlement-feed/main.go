package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/checkout-engine/internal/settlementfeed"
	"github.com/angelmondragon/checkout-engine/pkg/bigquery"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/instance"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/idempotency"
	"github.com/angelmondragon/checkout-engine/pkg/pubsub"
	"github.com/angelmondragon/checkout-engine/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "settlement-feed"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "settlement-feed"

	logg = logger.New(logger.Options{
		ServiceName: "settlement-feed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	err = bqClient.EnsureTable(ctx, bigquery.Table{
		Name:           cfg.BigQuery.SettlementTable,
		Schema:         settlementfeed.Schema(),
		PartitionField: settlementfeed.PartitionField,
	})
	requireResource(ctx, logg, "settlement table", err)

	subscription := pubsubClient.SettlementSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "settlement subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	writer, err := settlementfeed.NewWriter(bqClient, cfg.BigQuery.SettlementTable, settlementfeed.RetryPolicy{})
	requireResource(ctx, logg, "settlement bigquery writer", err)

	handler, err := settlementfeed.NewHandler(settlementfeed.NewDecoders(), writer)
	requireResource(ctx, logg, "settlement handler", err)

	service, err := settlementfeed.NewService(subscription, handler, manager, logg)
	requireResource(ctx, logg, "settlement feed service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
		"table":       cfg.BigQuery.SettlementTable,
	})
	logg.Info(runCtx, "settlement feed ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "settlement feed failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
