package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/checkout-engine/api/controllers"
	"github.com/angelmondragon/checkout-engine/api/routes"
	"github.com/angelmondragon/checkout-engine/internal/auth"
	"github.com/angelmondragon/checkout-engine/internal/cart"
	"github.com/angelmondragon/checkout-engine/internal/checkout"
	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/internal/fees"
	"github.com/angelmondragon/checkout-engine/internal/listings"
	"github.com/angelmondragon/checkout-engine/internal/orders"
	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/internal/settlement"
	"github.com/angelmondragon/checkout-engine/internal/users"
	"github.com/angelmondragon/checkout-engine/pkg/auth/session"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db"
	"github.com/angelmondragon/checkout-engine/pkg/gateway/providers"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/metrics"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/redis"
)

func wire(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.RouterParams, error) {
	var p routes.RouterParams

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessionManager, err := session.NewManager(redisClient, cfg.JWT.AccessTokenTTL())
	if err != nil {
		return p, fmt.Errorf("session manager: %w", err)
	}

	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	listingsRepo := listings.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	quotesRepo := quotes.NewRepository(conn)
	checkoutRepo := checkout.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	calc, err := fees.NewCalculator(fees.ScheduleFromConfig(cfg.Fees))
	if err != nil {
		return p, fmt.Errorf("fee calculator: %w", err)
	}
	resolver, err := delivery.NewResolver(listingsRepo, cfg.Fees.DefaultDeliveryFeeMinor)
	if err != nil {
		return p, fmt.Errorf("delivery resolver: %w", err)
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return p, fmt.Errorf("auth service: %w", err)
	}
	registerSvc, err := auth.NewRegisterService(auth.RegisterServiceParams{
		Tx:             dbClient,
		Users:          usersRepo,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return p, fmt.Errorf("register service: %w", err)
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:      cartRepo,
		Tx:        dbClient,
		Listings:  listingsRepo,
		Snapshots: quotesRepo,
		Currency:  cfg.Fees.Currency,
	})
	if err != nil {
		return p, fmt.Errorf("cart service: %w", err)
	}
	quoteBuilder, err := quotes.NewBuilder(quotes.BuilderParams{
		Repo:       quotesRepo,
		Tx:         dbClient,
		Listings:   listingsRepo,
		Delivery:   resolver,
		Calculator: calc,
		TTL:        cfg.Checkout.QuoteTTL,
	})
	if err != nil {
		return p, fmt.Errorf("quote builder: %w", err)
	}

	gateways, err := providers.NewRegistry(ctx, cfg, logg, metrics.NewGatewayMetrics(reg))
	if err != nil {
		return p, fmt.Errorf("payment gateways: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Repo:        checkoutRepo,
		Tx:          dbClient,
		Quotes:      quotesRepo,
		Carts:       cartRepo,
		Gateways:    gateways,
		Outbox:      outboxSvc,
		Logger:      logg,
		SessionTTL:  cfg.Checkout.SessionTTL,
		CallbackURL: cfg.Checkout.CallbackURL,
	})
	if err != nil {
		return p, fmt.Errorf("checkout service: %w", err)
	}
	guestResolver, err := users.NewGuestResolver(usersRepo)
	if err != nil {
		return p, fmt.Errorf("guest resolver: %w", err)
	}
	guestSvc, err := checkout.NewGuestService(checkout.GuestServiceParams{
		Sessions: checkoutSvc,
		Tx:       dbClient,
		Listings: listingsRepo,
		Quotes:   quoteBuilder,
		Users:    guestResolver,
		Tokens:   authSvc,
		Logger:   logg,
		Currency: cfg.Fees.Currency,
	})
	if err != nil {
		return p, fmt.Errorf("guest checkout service: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:   ordersRepo,
		Tx:     dbClient,
		Outbox: outboxSvc,
		Logger: logg,
	})
	if err != nil {
		return p, fmt.Errorf("orders service: %w", err)
	}

	guard, err := settlement.NewGuard(redisClient, cfg.Eventing.WebhookDedupTTL)
	if err != nil {
		return p, fmt.Errorf("webhook guard: %w", err)
	}
	reconciler, err := settlement.NewReconciler(settlement.ReconcilerParams{
		Events:   settlement.NewRepository(conn),
		Sessions: checkoutRepo,
		Quotes:   quotesRepo,
		Carts:    cartRepo,
		Orders:   ordersSvc,
		Gateways: gateways,
		Outbox:   outboxSvc,
		Tx:       dbClient,
		Guard:    guard,
		Metrics:  metrics.NewSettlementMetrics(reg),
		Logger:   logg,
	})
	if err != nil {
		return p, fmt.Errorf("settlement reconciler: %w", err)
	}

	return routes.RouterParams{
		Config:   cfg,
		Logger:   logg,
		Redis:    redisClient,
		Sessions: sessionManager,
		Health: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Auth:       authSvc,
		Register:   registerSvc,
		Cart:       cartSvc,
		Quotes:     quoteBuilder,
		Checkout:   checkoutSvc,
		Guest:      guestSvc,
		Orders:     ordersSvc,
		Fees:       calc,
		Reconciler: reconciler,
	}, nil
}
