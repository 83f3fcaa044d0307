package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/auth"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type redisStore interface {
	db.Pinger
	middleware.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Observability carries the registry the /metrics endpoint serves and the
// collectors the HTTP layer records into.
type Observability struct {
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
	Webhooks *metrics.WebhookMetrics
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	sessions session.AccessSessionChecker,
	authService auth.Service,
	addressService address.Service,
	paymentsService payments.Service,
	ordersService orders.Service,
	webhook webhookcontrollers.PaymentWebhookParams,
	obs Observability,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(cfg.CORS),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, obs.HTTP),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if obs.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(obs.Gatherer, promhttp.HandlerOpts{}))
	}

	if webhook.Logger == nil {
		webhook.Logger = logg
	}
	if webhook.Metrics == nil {
		webhook.Metrics = obs.Webhooks
	}
	paymentWebhook := webhookcontrollers.PaymentWebhook(webhook)
	r.Post("/api/v1/webhooks/payment", paymentWebhook)
	r.Post("/webhooks/payment", paymentWebhook)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", authcontrollers.Register(authService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", authcontrollers.Login(authService, logg))
		r.Post("/refresh", authcontrollers.Refresh(authService, logg))
		r.Post("/logout", authcontrollers.Logout(authService, logg))
	})

	authenticated := middleware.Auth(cfg.JWT, sessions, logg)
	adminOnly := middleware.RequireRole(logg, enums.UserRoleAdmin)
	checkout := middleware.Idempotency(redisClient, cfg.Idempotency.CheckoutTTL, logg)

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticated)

		r.Post("/addresses", controllers.AddressCreate(addressService, logg))
		r.Get("/addresses", controllers.AddressList(addressService, logg))
		r.With(checkout).Post("/payment/intent", controllers.PaymentIntentCreate(paymentsService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(checkout).Post("/", ordercontrollers.Create(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.With(adminOnly).Patch("/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", ordercontrollers.AdminList(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.AdminDetail(ordersService, logg))
		})
	})

	// Unprefixed paths kept for existing clients.
	r.Group(func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/addresses", controllers.AddressCreate(addressService, logg))
		r.With(checkout).Post("/payment/intent", controllers.PaymentIntentCreate(paymentsService, logg))
		r.With(adminOnly).Patch("/orders/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
	})

	return r
}
