package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "STOREFRONT_APP_ENV"
	EnvPort            = "STOREFRONT_APP_PORT"
	EnvLogLevel        = "STOREFRONT_LOG_LEVEL"
	EnvPendingOrderTTL = "STOREFRONT_PENDING_ORDER_TTL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBPort = "STOREFRONT_DB_PORT"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBPass = "STOREFRONT_DB_PASSWORD"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvRedisAddr = "STOREFRONT_REDIS_ADDR"

	EnvJWTSecret                = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer                = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins               = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes   = "STOREFRONT_REFRESH_TOKEN_TTL_MINUTES"
	EnvAutoMigrate              = "STOREFRONT_AUTO_MIGRATE"
	EnvWebhookIdempotencyTTL    = "STOREFRONT_WEBHOOK_IDEMPOTENCY_TTL"
	EnvNotificationsQueueSize   = "STOREFRONT_NOTIFICATIONS_QUEUE_SIZE"
	EnvNotificationsSendTimeout = "STOREFRONT_NOTIFICATIONS_SEND_TIMEOUT"
	EnvLoginIPLimit             = "STOREFRONT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT"
	EnvLoginEmailLimit          = "STOREFRONT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT"

	EnvCORSAllowedOrigins     = "STOREFRONT_CORS_ALLOWED_ORIGINS"
	EnvIdempotencyCheckoutTTL = "STOREFRONT_IDEMPOTENCY_CHECKOUT_TTL"

	EnvGCPProjectID      = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "STOREFRONT_PUBSUB_ORDERS_TOPIC"

	EnvStripeAPIKey   = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeSecret   = "STOREFRONT_STRIPE_SECRET"
	EnvStripeEnv      = "STOREFRONT_STRIPE_ENV"
	EnvStripeCurrency = "STOREFRONT_STRIPE_CURRENCY"

	EnvSendgridAPIKey = "STOREFRONT_SENDGRID_API_KEY"
	EnvSendgridFrom   = "STOREFRONT_SENDGRID_FROM_EMAIL"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
