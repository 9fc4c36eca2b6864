package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Reservations ReservationsConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	MercadoPago  MercadoPagoConfig
	MelhorEnvio  MelhorEnvioConfig
	Stripe       StripeConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MARIPOSA_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARIPOSA_APP_PORT" required:"true"`
	BaseURL      string   `envconfig:"MARIPOSA_APP_BASE_URL" default:"http://localhost:3000"`
	CORSOrigins  []string `envconfig:"MARIPOSA_APP_CORS_ORIGINS"`
	LogLevel     string   `envconfig:"MARIPOSA_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MARIPOSA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARIPOSA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARIPOSA_DB_DSN"`
	Driver string `envconfig:"MARIPOSA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARIPOSA_DB_HOST"`
	LegacyPort     int    `envconfig:"MARIPOSA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARIPOSA_DB_USER"`
	LegacyPassword string `envconfig:"MARIPOSA_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARIPOSA_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARIPOSA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARIPOSA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARIPOSA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARIPOSA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARIPOSA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARIPOSA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARIPOSA_REDIS_ADDR"`
	Password     string        `envconfig:"MARIPOSA_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARIPOSA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARIPOSA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARIPOSA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARIPOSA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARIPOSA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARIPOSA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARIPOSA_AUTO_MIGRATE" default:"false"`
}

type ReservationsConfig struct {
	DefaultHoldMinutes int `envconfig:"MARIPOSA_RESERVATION_DEFAULT_HOLD_MINUTES" default:"15"`
	MaxHoldMinutes     int `envconfig:"MARIPOSA_RESERVATION_MAX_HOLD_MINUTES" default:"30"`
}

// DefaultHold returns the configured default hold window.
func (r ReservationsConfig) DefaultHold() time.Duration {
	if r.DefaultHoldMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(r.DefaultHoldMinutes) * time.Minute
}

// MaxHold returns the hard cap applied to every hold window.
func (r ReservationsConfig) MaxHold() time.Duration {
	if r.MaxHoldMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(r.MaxHoldMinutes) * time.Minute
}

type CheckoutConfig struct {
	NotificationURL  string `envconfig:"MARIPOSA_CHECKOUT_NOTIFICATION_URL"`
	IdempotencyTTLH  int    `envconfig:"MARIPOSA_CHECKOUT_IDEMPOTENCY_TTL_HOURS" default:"168"`
	OriginPostalCode string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_POSTAL_CODE" required:"true"`

	// Sender details printed on shipping labels.
	OriginName     string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_NAME" default:"Mariposa Vintage"`
	OriginStreet   string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_STREET"`
	OriginNumber   string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_NUMBER"`
	OriginDistrict string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_DISTRICT"`
	OriginCity     string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_CITY"`
	OriginState    string `envconfig:"MARIPOSA_CHECKOUT_ORIGIN_STATE"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARIPOSA_CRON_INTERVAL" default:"5m"`
}

type MercadoPagoConfig struct {
	AccessToken   string `envconfig:"MARIPOSA_MERCADOPAGO_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"MARIPOSA_MERCADOPAGO_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"MARIPOSA_MERCADOPAGO_BASE_URL" default:"https://api.mercadopago.com"`
}

type MelhorEnvioConfig struct {
	Token     string `envconfig:"MARIPOSA_MELHORENVIO_TOKEN"`
	Env       string `envconfig:"MARIPOSA_MELHORENVIO_ENV" default:"sandbox"`
	UserAgent string `envconfig:"MARIPOSA_MELHORENVIO_USER_AGENT" default:"Mariposa Vintage (contato@mariposavintage.com.br)"`
}

// Environment returns the normalized Melhor Envio environment (sandbox/production).
func (m MelhorEnvioConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(m.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type StripeConfig struct {
	APIKey string `envconfig:"MARIPOSA_STRIPE_API_KEY"`
	Secret string `envconfig:"MARIPOSA_STRIPE_SECRET"`
	Env    string `envconfig:"MARIPOSA_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
