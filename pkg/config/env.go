package config

// EnvPrefix is handed to envconfig; explicit tags below are matched verbatim.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "STOREFRONT_APP_ENV"
	EnvPort         = "STOREFRONT_APP_PORT"
	EnvLogLevel     = "STOREFRONT_LOG_LEVEL"
	EnvLogWarnStack = "STOREFRONT_LOG_WARN_STACK"
	EnvServiceKind  = "STOREFRONT_SERVICE_KIND"

	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBPort   = "STOREFRONT_DB_PORT"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBPass   = "STOREFRONT_DB_PASSWORD"
	EnvDBName   = "STOREFRONT_DB_NAME"
	EnvDBSSL    = "STOREFRONT_DB_SSLMODE"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret               = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer               = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins              = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes  = "STOREFRONT_REFRESH_TOKEN_TTL_MINUTES"
	EnvFreeShippingThreshold   = "STOREFRONT_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvStandardShippingFee     = "STOREFRONT_PRICING_STANDARD_SHIPPING_FEE"
	EnvEventingBroker          = "STOREFRONT_EVENTING_BROKER"
	EnvGCPProjectID            = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic       = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub         = "STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubNotificationTopic = "STOREFRONT_PUBSUB_NOTIFICATION_TOPIC"
	EnvKafkaBrokers            = "STOREFRONT_KAFKA_BROKERS"
	EnvKafkaOrdersTopic        = "STOREFRONT_KAFKA_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
