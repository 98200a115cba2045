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
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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
	DBLogSQL          bool

	Redis           RedisConfig
	CommitRateLimit RateLimitConfig

	Payforms   PayformsConfig
	Reconciler ReconcilerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// RateLimitConfig bounds gateway callbacks per tenant and payform.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

// PayformsConfig carries process-level payform runtime switches.
type PayformsConfig struct {
	Sandbox         bool
	CallbackBaseURL string
	HubTimeout      time.Duration
	SettingsPath    string
}

type ReconcilerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
	LockTTL   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "payforms"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogSQL:          getenvBool("DATABASE_LOG_SQL", false),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		CommitRateLimit: RateLimitConfig{
			Rate:  getenvFloat("COMMIT_RATE_LIMIT_RATE", 5),
			Burst: getenvInt("COMMIT_RATE_LIMIT_BURST", 20),
		},
		Payforms: PayformsConfig{
			Sandbox:         getenvBool("PAYFORMS_SANDBOX", false),
			CallbackBaseURL: strings.TrimRight(strings.TrimSpace(getenv("PAYFORMS_CALLBACK_BASE_URL", "http://localhost:8080")), "/"),
			HubTimeout:      getenvDuration("PAYFORMS_HUB_TIMEOUT", 15*time.Second),
			SettingsPath:    strings.TrimSpace(getenv("PAYFORMS_SETTINGS_PATH", "")),
		},
		Reconciler: ReconcilerConfig{
			Enabled:   getenvBool("RECONCILER_ENABLED", true),
			Interval:  getenvDuration("RECONCILER_INTERVAL", time.Hour),
			BatchSize: getenvInt("RECONCILER_BATCH_SIZE", 200),
			Timeout:   getenvDuration("RECONCILER_TENANT_TIMEOUT", 5*time.Minute),
			LockTTL:   getenvDuration("RECONCILER_LOCK_TTL", 30*time.Minute),
		},
	}

	return cfg
}

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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
