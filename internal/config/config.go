package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	PublicBaseURL string
	SnowflakeNode int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	MigrateOnStart    bool

	Stripe    StripeConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Authz     AuthzConfig
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	APIBaseURL       string
	AccountID        string
	WebhookTolerance time.Duration
	RequestTimeout   time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled         bool
	StatusPollRate  float64
	StatusPollBurst int
	CheckoutLockTTL time.Duration
}

type AuthzConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "servicepoint"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("APP_BASE_URL", "http://localhost:3000")), "/"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "servicepoint"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		MigrateOnStart:    getenvBool("DATABASE_MIGRATE", true),

		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			APIBaseURL:       strings.TrimRight(getenv("STRIPE_API_BASE_URL", "https://api.stripe.com"), "/"),
			AccountID:        strings.TrimSpace(getenv("STRIPE_ACCOUNT_ID", "")),
			WebhookTolerance: time.Duration(getenvInt64("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
			RequestTimeout:   time.Duration(getenvInt64("STRIPE_REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", false),
			StatusPollRate:  getenvFloat("RATE_LIMIT_STATUS_POLL_RATE", 2),
			StatusPollBurst: int(getenvInt64("RATE_LIMIT_STATUS_POLL_BURST", 10)),
			CheckoutLockTTL: time.Duration(getenvInt64("CHECKOUT_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Authz: AuthzConfig{
			Enabled: getenvBool("AUTHZ_ENABLED", true),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
