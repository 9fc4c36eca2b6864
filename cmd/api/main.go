package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	webhookcontrollers "github.com/mariposavintage/mariposa-backend/api/controllers/webhooks"
	"github.com/mariposavintage/mariposa-backend/api/routes"
	"github.com/mariposavintage/mariposa-backend/internal/checkout"
	"github.com/mariposavintage/mariposa-backend/internal/orders"
	"github.com/mariposavintage/mariposa-backend/internal/products"
	"github.com/mariposavintage/mariposa-backend/internal/reservations"
	"github.com/mariposavintage/mariposa-backend/internal/shipping"
	"github.com/mariposavintage/mariposa-backend/internal/webhooks"
	mercadopagowebhook "github.com/mariposavintage/mariposa-backend/internal/webhooks/mercadopago"
	stripewebhook "github.com/mariposavintage/mariposa-backend/internal/webhooks/stripe"
	"github.com/mariposavintage/mariposa-backend/pkg/config"
	"github.com/mariposavintage/mariposa-backend/pkg/db"
	"github.com/mariposavintage/mariposa-backend/pkg/logger"
	"github.com/mariposavintage/mariposa-backend/pkg/melhorenvio"
	"github.com/mariposavintage/mariposa-backend/pkg/mercadopago"
	"github.com/mariposavintage/mariposa-backend/pkg/migrate"
	"github.com/mariposavintage/mariposa-backend/pkg/redis"
	pkgstripe "github.com/mariposavintage/mariposa-backend/pkg/stripe"
)

// Gateways redeliver webhooks for about a day, so processed event IDs are
// remembered at least that long.
const webhookDedupTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	productRepo := products.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())

	productService, err := products.NewService(products.ServiceParams{Repo: productRepo})
	requireService(logg, "product service", err)

	reservationService, err := reservations.NewService(reservations.ServiceParams{
		Tx:          dbClient,
		Repo:        reservationRepo,
		ProductRepo: productRepo,
		Config:      cfg.Reservations,
		Logger:      logg,
	})
	requireService(logg, "reservation service", err)

	melhorEnvioClient, err := melhorenvio.NewClient(
		cfg.MelhorEnvio.Token,
		cfg.MelhorEnvio.UserAgent,
		melhorenvio.Environment(cfg.MelhorEnvio.Environment()),
	)
	requireService(logg, "melhor envio client", err)

	shippingService, err := shipping.NewService(shipping.ServiceParams{
		Client: melhorEnvioClient,
		Config: cfg.Checkout,
		Logger: logg,
	})
	requireService(logg, "shipping service", err)

	mercadoPagoClient, err := mercadopago.NewClient(
		cfg.MercadoPago.AccessToken,
		mercadopago.WithBaseURL(cfg.MercadoPago.BaseURL),
	)
	requireService(logg, "mercado pago client", err)

	orderService, err := orders.NewService(orders.ServiceParams{Repo: orderRepo})
	requireService(logg, "order service", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:           dbClient,
		Orders:       orderRepo,
		Products:     productRepo,
		Reservations: reservationRepo,
		Shipping:     shippingService,
		Preferences:  mercadoPagoClient,
		AppBaseURL:   cfg.App.BaseURL,
		Config:       cfg.Checkout,
		Logger:       logg,
	})
	requireService(logg, "checkout service", err)

	mpGuard, err := webhooks.NewIdempotencyGuard(redisClient, webhookDedupTTL, "webhook:mercadopago")
	requireService(logg, "mercado pago webhook guard", err)

	mpWebhookService, err := mercadopagowebhook.NewService(mercadopagowebhook.ServiceParams{
		Orders:       orderRepo,
		Reservations: reservationService,
		Shipping:     shippingService,
		Gateway:      mercadoPagoClient,
		Guard:        mpGuard,
		Logger:       logg,
	})
	requireService(logg, "mercado pago webhook service", err)

	// Stripe is the secondary gateway; the route is only mounted when keys
	// are configured.
	var (
		stripeClient        *pkgstripe.Client
		stripeGuard         *webhooks.IdempotencyGuard
		stripeWebhookRoutes webhookcontrollers.StripeWebhookService
	)
	if cfg.Stripe.APIKey != "" && cfg.Stripe.Secret != "" {
		stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		requireService(logg, "stripe client", err)

		stripeGuard, err = webhooks.NewIdempotencyGuard(redisClient, webhookDedupTTL, "webhook:stripe")
		requireService(logg, "stripe webhook guard", err)

		stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Orders:       orderRepo,
			Reservations: reservationService,
			Shipping:     shippingService,
			Logger:       logg,
		})
		requireService(logg, "stripe webhook service", err)
		stripeWebhookRoutes = stripeWebhookService
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			productService,
			reservationService,
			shippingService,
			checkoutService,
			orderService,
			mpWebhookService,
			stripeWebhookRoutes,
			stripeClient,
			stripeGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name, err)
	os.Exit(1)
}
