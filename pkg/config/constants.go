package config

const (
	EnvPrefix = "CHECKOUT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CHECKOUT_APP_ENV"
	EnvPort     = "CHECKOUT_APP_PORT"
	EnvLogLevel = "CHECKOUT_LOG_LEVEL"

	EnvDBDSN    = "CHECKOUT_DB_DSN"
	EnvDBDriver = "CHECKOUT_DB_DRIVER"
	EnvDBHost   = "CHECKOUT_DB_HOST"
	EnvDBUser   = "CHECKOUT_DB_USER"
	EnvDBName   = "CHECKOUT_DB_NAME"

	EnvRedisURL = "CHECKOUT_REDIS_URL"

	EnvJWTSecret  = "CHECKOUT_JWT_SECRET"
	EnvJWTIssuer  = "CHECKOUT_JWT_ISSUER"
	EnvJWTExpMins = "CHECKOUT_JWT_EXPIRATION_MINUTES"

	EnvProcessingFeeBps = "CHECKOUT_FEES_PROCESSING_BPS"
	EnvEscrowFeeMinor   = "CHECKOUT_FEES_ESCROW_MINOR"
	EnvDefaultDelivery  = "CHECKOUT_FEES_DEFAULT_DELIVERY_MINOR"
	EnvCurrency         = "CHECKOUT_FEES_CURRENCY"

	EnvQuoteTTL    = "CHECKOUT_QUOTE_TTL"
	EnvSessionTTL  = "CHECKOUT_SESSION_TTL"
	EnvCallbackURL = "CHECKOUT_CALLBACK_URL"

	EnvGatewayProvider = "CHECKOUT_GATEWAY_PROVIDER"
	EnvPaystackSecret  = "CHECKOUT_PAYSTACK_SECRET_KEY"
	EnvSquareToken     = "CHECKOUT_SQUARE_ACCESS_TOKEN"

	EnvGCPProjectID        = "CHECKOUT_GCP_PROJECT_ID"
	EnvPubSubDomainTopic   = "CHECKOUT_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubSettlementSub = "CHECKOUT_PUBSUB_SETTLEMENT_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
