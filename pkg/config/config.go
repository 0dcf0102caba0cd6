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
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	Webhook      WebhookConfig
	Mastering    MasteringConfig
	ObjectStore  ObjectStoreConfig
	Stripe       StripeConfig
	Email        EmailConfig
	Quota        QuotaConfig
	Cron         CronConfig
	Throttle     ThrottleConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Quota.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"CASTMASTER_APP_ENV" required:"true"`
	Port         string   `envconfig:"CASTMASTER_APP_PORT" required:"true"`
	PublicURL    string   `envconfig:"CASTMASTER_APP_PUBLIC_URL" default:"http://localhost:3000"`
	CORSOrigins  []string `envconfig:"CASTMASTER_CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel     string   `envconfig:"CASTMASTER_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"CASTMASTER_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"CASTMASTER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CASTMASTER_DB_DSN"`
	Driver string `envconfig:"CASTMASTER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CASTMASTER_DB_HOST"`
	LegacyPort     int    `envconfig:"CASTMASTER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CASTMASTER_DB_USER"`
	LegacyPassword string `envconfig:"CASTMASTER_DB_PASSWORD"`
	LegacyName     string `envconfig:"CASTMASTER_DB_NAME"`
	LegacySSLMode  string `envconfig:"CASTMASTER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CASTMASTER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CASTMASTER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CASTMASTER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CASTMASTER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CASTMASTER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CASTMASTER_REDIS_ADDR"`
	Password     string        `envconfig:"CASTMASTER_REDIS_PASSWORD"`
	DB           int           `envconfig:"CASTMASTER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CASTMASTER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CASTMASTER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CASTMASTER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CASTMASTER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CASTMASTER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig verifies the session tokens minted by the identity provider.
type SessionConfig struct {
	Secret     string `envconfig:"CASTMASTER_SESSION_SECRET" required:"true"`
	Issuer     string `envconfig:"CASTMASTER_SESSION_ISSUER" required:"true"`
	CookieName string `envconfig:"CASTMASTER_SESSION_COOKIE" default:"cm_session"`
}

type WebhookConfig struct {
	Secret string `envconfig:"CASTMASTER_WEBHOOK_SECRET"`
}

// HashSalt returns the salt applied to guest IP hashes.
func (w WebhookConfig) HashSalt() string {
	if strings.TrimSpace(w.Secret) == "" {
		return "default-salt"
	}
	return w.Secret
}

type MasteringConfig struct {
	BaseURL        string        `envconfig:"CASTMASTER_MASTERING_API_URL" default:"http://localhost:8000"`
	RequestTimeout time.Duration `envconfig:"CASTMASTER_MASTERING_REQUEST_TIMEOUT" default:"30s"`
	UploadTimeout  time.Duration `envconfig:"CASTMASTER_MASTERING_UPLOAD_TIMEOUT" default:"10h"`
}

type ObjectStoreConfig struct {
	Bucket          string        `envconfig:"CASTMASTER_OBJECT_STORE_BUCKET"`
	Region          string        `envconfig:"CASTMASTER_OBJECT_STORE_REGION" default:"auto"`
	Endpoint        string        `envconfig:"CASTMASTER_OBJECT_STORE_ENDPOINT"`
	AccessKeyID     string        `envconfig:"CASTMASTER_OBJECT_STORE_ACCESS_KEY_ID"`
	SecretAccessKey string        `envconfig:"CASTMASTER_OBJECT_STORE_SECRET_ACCESS_KEY"`
	PublicBaseURL   string        `envconfig:"CASTMASTER_OBJECT_STORE_PUBLIC_URL"`
	PresignTTL      time.Duration `envconfig:"CASTMASTER_OBJECT_STORE_PRESIGN_TTL" default:"1h"`
}

type StripeConfig struct {
	APIKey              string `envconfig:"CASTMASTER_STRIPE_API_KEY"`
	Secret              string `envconfig:"CASTMASTER_STRIPE_SECRET"`
	Env                 string `envconfig:"CASTMASTER_STRIPE_ENV" default:"test"`
	SubscriptionPriceID string `envconfig:"CASTMASTER_STRIPE_SUBSCRIPTION_PRICE_ID"`
	HQPrice             string `envconfig:"CASTMASTER_STRIPE_HQ_PRICE" default:"1.00"`
	Currency            string `envconfig:"CASTMASTER_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type EmailConfig struct {
	ResendAPIKey   string `envconfig:"CASTMASTER_RESEND_API_KEY"`
	ResendBaseURL  string `envconfig:"CASTMASTER_RESEND_BASE_URL" default:"https://api.resend.com"`
	From           string `envconfig:"CASTMASTER_EMAIL_FROM" default:"CastMaster <notifications@castmaster.app>"`
	SupportAddress string `envconfig:"CASTMASTER_EMAIL_SUPPORT" default:"support@castmaster.app"`
}

type QuotaConfig struct {
	WeeklyLimit       int           `envconfig:"CASTMASTER_QUOTA_WEEKLY_LIMIT" default:"2"`
	Window            time.Duration `envconfig:"CASTMASTER_QUOTA_WINDOW" default:"168h"`
	StorageLimitBytes int64         `envconfig:"CASTMASTER_QUOTA_STORAGE_LIMIT_BYTES" default:"5368709120"`
	StorageWarnBytes  int64         `envconfig:"CASTMASTER_QUOTA_STORAGE_WARN_BYTES" default:"4831838208"`
	FreeFileTTL       time.Duration `envconfig:"CASTMASTER_QUOTA_FREE_FILE_TTL" default:"24h"`
}

func (q QuotaConfig) validate() error {
	if q.WeeklyLimit <= 0 {
		return fmt.Errorf("%s must be positive", EnvQuotaWeeklyLimit)
	}
	if q.StorageLimitBytes <= 0 {
		return fmt.Errorf("%s must be positive", EnvQuotaStorageLimit)
	}
	if q.StorageWarnBytes > q.StorageLimitBytes {
		return fmt.Errorf("storage warning threshold exceeds the storage limit")
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CASTMASTER_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"CASTMASTER_CRON_LOCK_TTL" default:"4m"`
}

// ThrottleConfig bounds anonymous notification sign-ups.
type ThrottleConfig struct {
	SubscribeWindow     time.Duration `envconfig:"CASTMASTER_THROTTLE_SUBSCRIBE_WINDOW" default:"10m"`
	SubscribeIPLimit    int           `envconfig:"CASTMASTER_THROTTLE_SUBSCRIBE_IP_LIMIT" default:"30"`
	SubscribeEmailLimit int           `envconfig:"CASTMASTER_THROTTLE_SUBSCRIBE_EMAIL_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CASTMASTER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CASTMASTER_AUTO_MIGRATE" default:"false"`
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
