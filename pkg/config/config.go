package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "clienthub"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "CLIENTHUB_DB_DSN"
	EnvDBHost = "CLIENTHUB_DB_HOST"
	EnvDBUser = "CLIENTHUB_DB_USER"
	EnvDBName = "CLIENTHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Analytics    AnalyticsConfig
	Prediction   PredictionConfig
	Idempotency  IdempotencyConfig
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
	Env          string `envconfig:"CLIENTHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"CLIENTHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLIENTHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLIENTHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLIENTHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLIENTHUB_DB_DSN"`
	Driver string `envconfig:"CLIENTHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLIENTHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"CLIENTHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLIENTHUB_DB_USER"`
	LegacyPassword string `envconfig:"CLIENTHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLIENTHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLIENTHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLIENTHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLIENTHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLIENTHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLIENTHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLIENTHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CLIENTHUB_REDIS_ADDR"`
	Password     string        `envconfig:"CLIENTHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLIENTHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLIENTHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLIENTHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLIENTHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLIENTHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLIENTHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLIENTHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLIENTHUB_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLIENTHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CLIENTHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLIENTHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"CLIENTHUB_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription    string `envconfig:"CLIENTHUB_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	CustomerEventsTopic   string `envconfig:"CLIENTHUB_PUBSUB_CUSTOMER_EVENTS_TOPIC" default:"ch-customer-events"`
	PublishCustomerEvents bool   `envconfig:"CLIENTHUB_PUBSUB_PUBLISH_CUSTOMER_EVENTS" default:"true"`
}

type AnalyticsConfig struct {
	SegmentBatchSize int `envconfig:"CLIENTHUB_ANALYTICS_SEGMENT_BATCH_SIZE" default:"100"`
}

type PredictionConfig struct {
	BaseURL     string        `envconfig:"CLIENTHUB_PREDICTION_BASE_URL"`
	APIKey      string        `envconfig:"CLIENTHUB_PREDICTION_API_KEY"`
	Timeout     time.Duration `envconfig:"CLIENTHUB_PREDICTION_TIMEOUT" default:"5s"`
	MaxRetries  int           `envconfig:"CLIENTHUB_PREDICTION_MAX_RETRIES" default:"3"`
	RetryBaseMS int           `envconfig:"CLIENTHUB_PREDICTION_RETRY_BASE_MS" default:"100"`
}

// Enabled reports whether an external prediction service is configured.
func (p PredictionConfig) Enabled() bool {
	return strings.TrimSpace(p.BaseURL) != ""
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"CLIENTHUB_IDEMPOTENCY_TTL" default:"24h"`
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
