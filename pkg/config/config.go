package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Eventing EventingConfig
	Bus      BusConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig
	Metrics  MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validateBus(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VSHOP_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"VSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VSHOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"VSHOP_SERVICE_KIND" default:"outbox-publisher"`
	AutoMigrate bool   `envconfig:"VSHOP_AUTO_MIGRATE" default:"false"`
}

type DBConfig struct {
	DSN    string `envconfig:"VSHOP_DB_DSN"`
	Driver string `envconfig:"VSHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"VSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VSHOP_DB_USER"`
	LegacyPassword string `envconfig:"VSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"VSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"VSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

// RedisConfig is optional; consumers skip the event-id guard when no URL or address is set.
type RedisConfig struct {
	URL          string        `envconfig:"VSHOP_REDIS_URL"`
	Address      string        `envconfig:"VSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"VSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"VSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"VSHOP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type BusConfig struct {
	Driver string `envconfig:"VSHOP_BUS_DRIVER" default:"pubsub"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VSHOP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ProductsTopic         string `envconfig:"VSHOP_PUBSUB_PRODUCTS_TOPIC" default:"vshop-product-events"`
	InventorySubscription string `envconfig:"VSHOP_PUBSUB_INVENTORY_SUBSCRIPTION" default:"vshop-inventory-product-events"`
}

type KafkaConfig struct {
	Brokers        []string      `envconfig:"VSHOP_KAFKA_BROKERS"`
	ProductsTopic  string        `envconfig:"VSHOP_KAFKA_PRODUCTS_TOPIC" default:"vshop.product-events"`
	InventoryGroup string        `envconfig:"VSHOP_KAFKA_INVENTORY_GROUP" default:"vshop-inventory"`
	BatchTimeout   time.Duration `envconfig:"VSHOP_KAFKA_BATCH_TIMEOUT" default:"10ms"`
	DialTimeout    time.Duration `envconfig:"VSHOP_KAFKA_DIAL_TIMEOUT" default:"5s"`
}

// OutboxConfig tunes the relay. RetryMaxAttempts of 1 keeps the single-attempt semantics.
type OutboxConfig struct {
	BatchSize        int           `envconfig:"VSHOP_OUTBOX_BATCH_SIZE" default:"100"`
	Delay            time.Duration `envconfig:"VSHOP_OUTBOX_DELAY" default:"10s"`
	PublishTimeout   time.Duration `envconfig:"VSHOP_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	ClaimSkipLocked  bool          `envconfig:"VSHOP_OUTBOX_CLAIM_SKIP_LOCKED" default:"false"`
	RetryMaxAttempts int           `envconfig:"VSHOP_OUTBOX_RETRY_MAX_ATTEMPTS" default:"1"`
	RetryBaseDelay   time.Duration `envconfig:"VSHOP_OUTBOX_RETRY_BASE_DELAY" default:"200ms"`
	RetryMaxDelay    time.Duration `envconfig:"VSHOP_OUTBOX_RETRY_MAX_DELAY" default:"5s"`
}

type MetricsConfig struct {
	Addr string `envconfig:"VSHOP_METRICS_ADDR" default:":9090"`
}

func (c *Config) validateBus() error {
	switch strings.ToLower(strings.TrimSpace(c.Bus.Driver)) {
	case BusDriverPubSub:
		if strings.TrimSpace(c.GCP.ProjectID) == "" {
			return fmt.Errorf("%s is required for the %s bus driver", EnvGCPProjectID, BusDriverPubSub)
		}
	case BusDriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required for the %s bus driver", EnvKafkaBrokers, BusDriverKafka)
		}
	case BusDriverMemory:
	default:
		return fmt.Errorf("unsupported %s %q", EnvBusDriver, c.Bus.Driver)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
