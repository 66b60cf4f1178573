package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/checkout-engine/api/controllers"
	authcontrollers "github.com/angelmondragon/checkout-engine/api/controllers/auth"
	cartcontrollers "github.com/angelmondragon/checkout-engine/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/checkout-engine/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/checkout-engine/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/checkout-engine/api/controllers/webhooks"
	"github.com/angelmondragon/checkout-engine/api/middleware"
	"github.com/angelmondragon/checkout-engine/internal/auth"
	"github.com/angelmondragon/checkout-engine/internal/cart"
	checkoutsvc "github.com/angelmondragon/checkout-engine/internal/checkout"
	"github.com/angelmondragon/checkout-engine/internal/fees"
	"github.com/angelmondragon/checkout-engine/internal/orders"
	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/internal/settlement"
	"github.com/angelmondragon/checkout-engine/pkg/auth/session"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	pkgredis "github.com/angelmondragon/checkout-engine/pkg/redis"
)

const (
	sessionIdempotencyTTL = 24 * time.Hour
	paymentIdempotencyTTL = 7 * 24 * time.Hour
)

// RouterParams carries everything the HTTP surface needs. Health is keyed by
// dependency name; Metrics is optional.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    *pkgredis.Client
	Sessions session.AccessSessionChecker
	Health   map[string]controllers.Pinger
	Metrics  http.Handler

	Auth       auth.Service
	Register   auth.RegisterService
	Cart       cart.Service
	Quotes     quotes.Builder
	Checkout   checkoutsvc.Service
	Guest      checkoutsvc.GuestService
	Orders     orders.Service
	Fees       *fees.Calculator
	Reconciler *settlement.Reconciler
}

func NewRouter(p RouterParams) (http.Handler, error) {
	if p.Config == nil || p.Logger == nil {
		return nil, errors.New("config and logger are required")
	}
	if p.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if p.Sessions == nil {
		return nil, errors.New("session checker is required")
	}
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.RateLimit.LoginWindow,
		cfg.RateLimit.LoginIPLimit,
		cfg.RateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		cfg.RateLimit.RegisterEmailLimit,
	)
	guestPolicy := middleware.NewRateLimitPolicy(
		"guest_checkout",
		cfg.RateLimit.GuestWindow,
		cfg.RateLimit.GuestIPLimit,
		cfg.RateLimit.GuestEmailLimit,
	)
	sessionKey := middleware.Idempotency(p.Redis, logg, middleware.IdempotencyPolicy{TTL: sessionIdempotencyTTL})
	paymentKey := middleware.Idempotency(p.Redis, logg, middleware.IdempotencyPolicy{TTL: paymentIdempotencyTTL})
	guestKey := middleware.Idempotency(p.Redis, logg, middleware.IdempotencyPolicy{TTL: sessionIdempotencyTTL, Optional: true})
	cancelKey := middleware.Idempotency(p.Redis, logg, middleware.IdempotencyPolicy{TTL: paymentIdempotencyTTL, Optional: true})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Health, logg))
	})
	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}

	r.Get("/fees/breakdown", controllers.FeesBreakdown(p.Fees, cfg.Fees.Currency, logg))

	r.Post("/payments/webhook/{provider}", webhookcontrollers.PaymentWebhook(p.Reconciler, logg))

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(loginPolicy, p.Redis, logg)).Post("/login", authcontrollers.Login(p.Auth, logg))
		r.With(middleware.RateLimit(registerPolicy, p.Redis, logg)).Post("/register", authcontrollers.Register(p.Register, p.Auth, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
			r.Post("/logout", authcontrollers.Logout(p.Auth, logg))
			r.Post("/claim", authcontrollers.ClaimGuest(p.Register, p.Auth, logg))
			r.Get("/me", authcontrollers.Me(logg))
		})
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(guestPolicy, p.Redis, logg))
			r.Post("/guest/quote", checkoutcontrollers.GuestQuote(p.Guest, logg))
			r.With(guestKey).Post("/guest/create", checkoutcontrollers.GuestCreate(p.Guest, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
			r.With(sessionKey).Post("/create", checkoutcontrollers.Create(p.Checkout, logg))
			r.With(paymentKey).Post("/{session_id}/complete", checkoutcontrollers.Complete(p.Checkout, logg))
			r.Get("/{session_id}", checkoutcontrollers.Get(p.Checkout, logg))
		})
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
		r.Post("/add", cartcontrollers.CartAdd(p.Cart, logg))
		r.Post("/update", cartcontrollers.CartUpdate(p.Cart, logg))
		r.Delete("/item/{id}", cartcontrollers.CartRemove(p.Cart, logg))
		r.Post("/snapshot", cartcontrollers.CartSnapshot(p.Cart, p.Quotes, logg))
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Get("/group/{group_id}", ordercontrollers.GetGroup(p.Orders, logg))
		r.Post("/{order_id}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
		r.With(cancelKey).Post("/{order_id}/cancel", ordercontrollers.Cancel(p.Orders, logg))
	})

	return r, nil
}
