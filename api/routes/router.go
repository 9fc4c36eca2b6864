package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mariposavintage/mariposa-backend/api/controllers"
	webhookcontrollers "github.com/mariposavintage/mariposa-backend/api/controllers/webhooks"
	"github.com/mariposavintage/mariposa-backend/api/middleware"
	checkoutsvc "github.com/mariposavintage/mariposa-backend/internal/checkout"
	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/products"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/internal/webhooks"
	"github.com/mariposavintage/mariposa-backend/pkg/config"
	"github.com/mariposavintage/mariposa-backend/pkg/db"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/redis"
	"github.com/mariposavintage/mariposa-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	productService products.Service,
	reservationService reservations.Service,
	shippingService shipping.Service,
	checkoutService checkoutsvc.Service,
	orderService orders.Service,
	mpWebhookService webhookcontrollers.MercadoPagoWebhookService,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeClient *stripe.Client,
	stripeWebhookGuard *webhooks.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.CORS(corsOrigins(cfg)),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	mpWebhook := webhookcontrollers.MercadoPagoWebhook(mpWebhookService, cfg.MercadoPago.WebhookSecret, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/mercadopago", mpWebhook)
			if stripeWebhookService != nil {
				r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
			}
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(productService, logg))
			r.Get("/{productId}", controllers.GetProduct(productService, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", controllers.CreateReservation(reservationService, logg))
			r.Get("/", controllers.ListReservations(reservationService, logg))
			r.Delete("/{reservationId}", controllers.CancelReservation(reservationService, logg))
		})

		r.Post("/shipping/quote", controllers.ShippingQuote(shippingService, logg))

		r.With(middleware.Idempotency(redisClient, checkoutIdempotencyTTL(cfg), logg)).
			Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(orderService, logg))
			r.Get("/{orderId}", controllers.GetOrder(orderService, logg))
		})
	})

	// Older notification URLs registered with the gateway point here; the
	// earliest registrations used the singular form.
	r.Post("/api/webhook/mercadopago", mpWebhook)
	r.Post("/api/webhooks/mercadopago", mpWebhook)

	return r
}

func corsOrigins(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	return cfg.App.CORSOrigins
}

func checkoutIdempotencyTTL(cfg *config.Config) time.Duration {
	if cfg == nil || cfg.Checkout.IdempotencyTTLH <= 0 {
		return 0
	}
	return time.Duration(cfg.Checkout.IdempotencyTTLH) * time.Hour
}
