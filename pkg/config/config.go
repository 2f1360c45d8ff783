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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	RabbitMQ     RabbitMQConfig
	Agent        AgentConfig
	Routing      RoutingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HANDOFFDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"HANDOFFDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HANDOFFDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HANDOFFDESK_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"HANDOFFDESK_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `envconfig:"HANDOFFDESK_SHUTDOWN_TIMEOUT" default:"15s"`
	IdempotencyTTL  time.Duration `envconfig:"HANDOFFDESK_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HANDOFFDESK_SERVICE_KIND" default:"api"`
	// MetricsAddr is the /metrics listener for workers; blank disables it.
	MetricsAddr string `envconfig:"HANDOFFDESK_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"HANDOFFDESK_DB_DSN"`
	Driver string `envconfig:"HANDOFFDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HANDOFFDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"HANDOFFDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HANDOFFDESK_DB_USER"`
	LegacyPassword string `envconfig:"HANDOFFDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"HANDOFFDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"HANDOFFDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HANDOFFDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HANDOFFDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HANDOFFDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HANDOFFDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"HANDOFFDESK_DB_LOCK_TIMEOUT" default:"5s"`
	SlowQuery       time.Duration `envconfig:"HANDOFFDESK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HANDOFFDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HANDOFFDESK_REDIS_ADDR"`
	Password     string        `envconfig:"HANDOFFDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"HANDOFFDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HANDOFFDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HANDOFFDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HANDOFFDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HANDOFFDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HANDOFFDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"HANDOFFDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"HANDOFFDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"HANDOFFDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"HANDOFFDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"HANDOFFDESK_AUTO_MIGRATE" default:"false"`
}

// RabbitMQConfig describes the run-agent job queue topology.
type RabbitMQConfig struct {
	URL            string        `envconfig:"HANDOFFDESK_RABBITMQ_URL" required:"true"`
	Queue          string        `envconfig:"HANDOFFDESK_RABBITMQ_AGENT_RUNS_QUEUE" default:"handoffdesk.agent_runs"`
	RetryDelay     time.Duration `envconfig:"HANDOFFDESK_RABBITMQ_RETRY_DELAY" default:"10s"`
	MaxAttempts    int           `envconfig:"HANDOFFDESK_RABBITMQ_MAX_ATTEMPTS" default:"5"`
	Concurrency    int           `envconfig:"HANDOFFDESK_RABBITMQ_CONCURRENCY" default:"8"`
	PublishTimeout time.Duration `envconfig:"HANDOFFDESK_RABBITMQ_PUBLISH_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"HANDOFFDESK_RABBITMQ_IDEMPOTENCY_TTL" default:"24h"`
}

// RetryQueue is the TTL queue that dead-letters back into Queue.
func (r RabbitMQConfig) RetryQueue() string {
	return r.Queue + ".retry"
}

// DLQ receives runs that exhausted MaxAttempts.
func (r RabbitMQConfig) DLQ() string {
	return r.Queue + ".dlq"
}

type AgentConfig struct {
	Provider        string        `envconfig:"HANDOFFDESK_AGENT_PROVIDER" default:"http"`
	Endpoint        string        `envconfig:"HANDOFFDESK_AGENT_ENDPOINT"`
	APIKey          string        `envconfig:"HANDOFFDESK_AGENT_API_KEY"`
	Timeout         time.Duration `envconfig:"HANDOFFDESK_AGENT_TIMEOUT" default:"30s"`
	TranscriptLimit int           `envconfig:"HANDOFFDESK_AGENT_TRANSCRIPT_LIMIT" default:"50"`
}

type RoutingConfig struct {
	StallAfter           time.Duration `envconfig:"HANDOFFDESK_ROUTING_STALL_AFTER" default:"10m"`
	RunLockTTL           time.Duration `envconfig:"HANDOFFDESK_ROUTING_RUN_LOCK_TTL" default:"2m"`
	DefaultQueueTTL      time.Duration `envconfig:"HANDOFFDESK_ROUTING_DEFAULT_QUEUE_TTL" default:"5m"`
	PolicyCacheTTL       time.Duration `envconfig:"HANDOFFDESK_ROUTING_POLICY_CACHE_TTL" default:"1m"`
	StalledBatchSize     int           `envconfig:"HANDOFFDESK_ROUTING_STALLED_BATCH_SIZE" default:"100"`
	CronInterval         time.Duration `envconfig:"HANDOFFDESK_CRON_INTERVAL" default:"1m"`
	OutboxRetentionDays  int           `envconfig:"HANDOFFDESK_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxRetentionEvery time.Duration `envconfig:"HANDOFFDESK_OUTBOX_RETENTION_EVERY" default:"1h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HANDOFFDESK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HANDOFFDESK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HANDOFFDESK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TransitionsTopic string `envconfig:"HANDOFFDESK_PUBSUB_TRANSITIONS_TOPIC" default:"handoffdesk-conversation-transitions"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HANDOFFDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HANDOFFDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HANDOFFDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = defaultSQLiteDSN
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
