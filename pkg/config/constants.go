package config

// EnvPrefix namespaces every setting read by envconfig.
const EnvPrefix = "VSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	BusDriverPubSub = "pubsub"
	BusDriverKafka  = "kafka"
	BusDriverMemory = "memory"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "VSHOP_APP_ENV"
	EnvLogLevel = "VSHOP_LOG_LEVEL"

	EnvDBDSN    = "VSHOP_DB_DSN"
	EnvDBDriver = "VSHOP_DB_DRIVER"
	EnvDBHost   = "VSHOP_DB_HOST"
	EnvDBUser   = "VSHOP_DB_USER"
	EnvDBName   = "VSHOP_DB_NAME"

	EnvRedisURL = "VSHOP_REDIS_URL"

	EnvBusDriver            = "VSHOP_BUS_DRIVER"
	EnvGCPProjectID         = "VSHOP_GCP_PROJECT_ID"
	EnvPubSubProductsTopic  = "VSHOP_PUBSUB_PRODUCTS_TOPIC"
	EnvPubSubInventorySub   = "VSHOP_PUBSUB_INVENTORY_SUBSCRIPTION"
	EnvKafkaBrokers         = "VSHOP_KAFKA_BROKERS"
	EnvKafkaProductsTopic   = "VSHOP_KAFKA_PRODUCTS_TOPIC"
	EnvKafkaInventoryGroup  = "VSHOP_KAFKA_INVENTORY_GROUP"
	EnvOutboxBatchSize      = "VSHOP_OUTBOX_BATCH_SIZE"
	EnvOutboxDelay          = "VSHOP_OUTBOX_DELAY"
	EnvOutboxClaimSkipLock  = "VSHOP_OUTBOX_CLAIM_SKIP_LOCKED"
	EnvOutboxRetryAttempts  = "VSHOP_OUTBOX_RETRY_MAX_ATTEMPTS"
	EnvOutboxPublishTimeout = "VSHOP_OUTBOX_PUBLISH_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
