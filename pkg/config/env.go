package config

// EnvPrefix namespaces every environment variable read by envconfig.
const EnvPrefix = "MARIPOSA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "MARIPOSA_APP_ENV"
	EnvPort     = "MARIPOSA_APP_PORT"
	EnvDBDSN    = "MARIPOSA_DB_DSN"
	EnvDBHost   = "MARIPOSA_DB_HOST"
	EnvDBUser   = "MARIPOSA_DB_USER"
	EnvDBName   = "MARIPOSA_DB_NAME"
	EnvRedisURL = "MARIPOSA_REDIS_URL"

	EnvMercadoPagoAccessToken   = "MARIPOSA_MERCADOPAGO_ACCESS_TOKEN"
	EnvMercadoPagoWebhookSecret = "MARIPOSA_MERCADOPAGO_WEBHOOK_SECRET"
	EnvMelhorEnvioToken         = "MARIPOSA_MELHORENVIO_TOKEN"
	EnvStripeAPIKey             = "MARIPOSA_STRIPE_API_KEY"
	EnvStripeSecret             = "MARIPOSA_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
