package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "HANDOFFDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "HANDOFFDESK_APP_ENV"
	EnvPort         = "HANDOFFDESK_APP_PORT"
	EnvDBDSN        = "HANDOFFDESK_DB_DSN"
	EnvDBHost       = "HANDOFFDESK_DB_HOST"
	EnvDBUser       = "HANDOFFDESK_DB_USER"
	EnvDBName       = "HANDOFFDESK_DB_NAME"
	EnvUseSQLite    = "HANDOFFDESK_USE_SQLITE"
	EnvRedisURL     = "HANDOFFDESK_REDIS_URL"
	EnvJWTSecret    = "HANDOFFDESK_JWT_SECRET"
	EnvJWTIssuer    = "HANDOFFDESK_JWT_ISSUER"
	EnvRabbitMQURL  = "HANDOFFDESK_RABBITMQ_URL"
	EnvStallAfter   = "HANDOFFDESK_ROUTING_STALL_AFTER"
	EnvAgentTimeout = "HANDOFFDESK_AGENT_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const defaultSQLiteDSN = "file:handoffdesk.db?cache=shared&_busy_timeout=5000"
