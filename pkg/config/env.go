package config

const (
	EnvPrefix = "CASTMASTER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CASTMASTER_APP_ENV"
	EnvPort     = "CASTMASTER_APP_PORT"
	EnvLogLevel = "CASTMASTER_LOG_LEVEL"

	EnvDBDSN  = "CASTMASTER_DB_DSN"
	EnvDBHost = "CASTMASTER_DB_HOST"
	EnvDBUser = "CASTMASTER_DB_USER"
	EnvDBName = "CASTMASTER_DB_NAME"

	EnvRedisURL = "CASTMASTER_REDIS_URL"

	EnvSessionSecret = "CASTMASTER_SESSION_SECRET"
	EnvSessionIssuer = "CASTMASTER_SESSION_ISSUER"

	EnvWebhookSecret = "CASTMASTER_WEBHOOK_SECRET"

	EnvMasteringURL = "CASTMASTER_MASTERING_API_URL"

	EnvObjectStoreBucket   = "CASTMASTER_OBJECT_STORE_BUCKET"
	EnvObjectStoreEndpoint = "CASTMASTER_OBJECT_STORE_ENDPOINT"

	EnvQuotaWeeklyLimit  = "CASTMASTER_QUOTA_WEEKLY_LIMIT"
	EnvQuotaStorageLimit = "CASTMASTER_QUOTA_STORAGE_LIMIT_BYTES"

	EnvClientPrefix = "CASTCTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
