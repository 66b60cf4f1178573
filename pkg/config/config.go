package config

import (
	"errors"
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
	JWT          JWTConfig
	Password     PasswordConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Fees         FeesConfig
	Checkout     CheckoutConfig
	Gateway      GatewayConfig
	Paystack     PaystackConfig
	Square       SquareConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CHECKOUT_APP_ENV" required:"true"`
	Port         string `envconfig:"CHECKOUT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CHECKOUT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHECKOUT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CHECKOUT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CHECKOUT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHECKOUT_DB_DSN"`
	Driver string `envconfig:"CHECKOUT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHECKOUT_DB_HOST"`
	LegacyPort     int    `envconfig:"CHECKOUT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHECKOUT_DB_USER"`
	LegacyPassword string `envconfig:"CHECKOUT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHECKOUT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHECKOUT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHECKOUT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHECKOUT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHECKOUT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHECKOUT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CHECKOUT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHECKOUT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CHECKOUT_REDIS_ADDR"`
	Password     string        `envconfig:"CHECKOUT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHECKOUT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHECKOUT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHECKOUT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHECKOUT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHECKOUT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHECKOUT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CHECKOUT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CHECKOUT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CHECKOUT_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AccessTokenTTL returns the access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CHECKOUT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CHECKOUT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CHECKOUT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CHECKOUT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CHECKOUT_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CHECKOUT_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CHECKOUT_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CHECKOUT_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CHECKOUT_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CHECKOUT_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CHECKOUT_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	GuestWindow        time.Duration `envconfig:"CHECKOUT_RATE_LIMIT_GUEST_WINDOW" default:"10m"`
	GuestEmailLimit    int           `envconfig:"CHECKOUT_RATE_LIMIT_GUEST_EMAIL_LIMIT" default:"5"`
	GuestIPLimit       int           `envconfig:"CHECKOUT_RATE_LIMIT_GUEST_IP_LIMIT" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CHECKOUT_CORS_ALLOWED_ORIGINS"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CHECKOUT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"CHECKOUT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupTTL      time.Duration `envconfig:"CHECKOUT_EVENTING_WEBHOOK_DEDUP_TTL" default:"168h"`
}

// FeesConfig holds the platform fee schedule. All amounts are minor units.
type FeesConfig struct {
	ProcessingFeeBps        int64  `envconfig:"CHECKOUT_FEES_PROCESSING_BPS" default:"150"`
	EscrowFeeMinor          int64  `envconfig:"CHECKOUT_FEES_ESCROW_MINOR" default:"2500"`
	DefaultDeliveryFeeMinor int64  `envconfig:"CHECKOUT_FEES_DEFAULT_DELIVERY_MINOR" default:"0"`
	Currency                string `envconfig:"CHECKOUT_FEES_CURRENCY" default:"ZAR"`
}

type CheckoutConfig struct {
	QuoteTTL      time.Duration `envconfig:"CHECKOUT_QUOTE_TTL" default:"15m"`
	SessionTTL    time.Duration `envconfig:"CHECKOUT_SESSION_TTL" default:"30m"`
	CallbackURL   string        `envconfig:"CHECKOUT_CALLBACK_URL"`
	SweepInterval time.Duration `envconfig:"CHECKOUT_SWEEP_INTERVAL" default:"1m"`
}

type GatewayConfig struct {
	DefaultProvider string        `envconfig:"CHECKOUT_GATEWAY_PROVIDER" default:"paystack"`
	Timeout         time.Duration `envconfig:"CHECKOUT_GATEWAY_TIMEOUT" default:"5s"`
	RetryBackoff    time.Duration `envconfig:"CHECKOUT_GATEWAY_RETRY_BACKOFF" default:"300ms"`
}

type PaystackConfig struct {
	SecretKey string `envconfig:"CHECKOUT_PAYSTACK_SECRET_KEY"`
	BaseURL   string `envconfig:"CHECKOUT_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
}

type SquareConfig struct {
	AccessToken     string `envconfig:"CHECKOUT_SQUARE_ACCESS_TOKEN"`
	Env             string `envconfig:"CHECKOUT_SQUARE_ENV" default:"sandbox"`
	LocationID      string `envconfig:"CHECKOUT_SQUARE_LOCATION_ID"`
	WebhookSecret   string `envconfig:"CHECKOUT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	NotificationURL string `envconfig:"CHECKOUT_SQUARE_NOTIFICATION_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CHECKOUT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CHECKOUT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CHECKOUT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic            string `envconfig:"CHECKOUT_PUBSUB_DOMAIN_TOPIC" default:"checkout-domain-events"`
	SettlementSubscription string `envconfig:"CHECKOUT_PUBSUB_SETTLEMENT_SUBSCRIPTION" default:"checkout-settlement-feed"`
	MaxOutstanding         int    `envconfig:"CHECKOUT_PUBSUB_MAX_OUTSTANDING" default:"100"`
	ReceiveGoroutines      int    `envconfig:"CHECKOUT_PUBSUB_RECEIVE_GOROUTINES" default:"2"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"CHECKOUT_BIGQUERY_DATASET" default:"checkout"`
	SettlementTable string `envconfig:"CHECKOUT_BIGQUERY_SETTLEMENT_TABLE" default:"settlements"`
	CreateTables    bool   `envconfig:"CHECKOUT_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CHECKOUT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CHECKOUT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CHECKOUT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CHECKOUT_OUTBOX_RETENTION" default:"720h"`
	MetricsAddr    string        `envconfig:"CHECKOUT_OUTBOX_METRICS_ADDR" default:":9091"`
}

func (c *Config) validate() error {
	if c.Fees.ProcessingFeeBps < 0 || c.Fees.ProcessingFeeBps > 10000 {
		return fmt.Errorf("%s must be between 0 and 10000", EnvProcessingFeeBps)
	}
	if c.Fees.EscrowFeeMinor < 0 {
		return fmt.Errorf("%s must not be negative", EnvEscrowFeeMinor)
	}
	if c.Fees.DefaultDeliveryFeeMinor < 0 {
		return fmt.Errorf("%s must not be negative", EnvDefaultDelivery)
	}
	if strings.TrimSpace(c.Fees.Currency) == "" {
		return fmt.Errorf("%s is required", EnvCurrency)
	}
	if c.Checkout.QuoteTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvQuoteTTL)
	}
	if c.Checkout.SessionTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvSessionTTL)
	}
	switch strings.ToLower(strings.TrimSpace(c.Gateway.DefaultProvider)) {
	case "paystack", "square":
	default:
		return errors.New(EnvGatewayProvider + " must be paystack or square")
	}
	return nil
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
