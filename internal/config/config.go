package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backend constants
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string // public base, used to build the OAuth callback URL

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Session store
	SessionBackend string // "memory" or "redis"
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// HMAC protection of initiation requests
	HMACEnabled bool
	HMACKey     string

	// Provider catalog
	ProvidersFile string

	// Outbound provider HTTP settings
	ProviderTimeout time.Duration // token/request-token calls; no retries

	// Outcome webhook (best-effort, retried)
	WebhookURL           string
	WebhookSecret        string
	WebhookTimeout       time.Duration
	WebhookMaxRetries    int
	WebhookRetryDelay    time.Duration
	WebhookMaxRetryDelay time.Duration

	// Rate limiting of the public initiation endpoint
	RateLimitEnabled bool
	RateLimitRPM     int // requests per minute per client IP

	// Metrics
	MetricsEnabled bool

	// Activity log
	AuditEnabled    bool
	AuditBufferSize int

	// EnvironmentID scopes provider configs and connections for this
	// deployment. Multi-environment routing happens upstream.
	EnvironmentID string

	// Dev seeding
	SeedDemoData bool
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "connections.db"),

		SessionBackend: getEnv("SESSION_BACKEND", SessionBackendMemory),
		SessionTTL:     getEnvDuration("AUTH_SESSION_TTL", 10*time.Minute),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),

		HMACEnabled: getEnvBool("HMAC_ENABLED", false),
		HMACKey:     getEnv("HMAC_KEY", ""),

		ProvidersFile: getEnv("PROVIDERS_FILE", "providers.yaml"),

		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		WebhookURL:           getEnv("WEBHOOK_URL", ""),
		WebhookSecret:        getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout:       getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookMaxRetries:    getEnvInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookRetryDelay:    getEnvDuration("WEBHOOK_RETRY_DELAY", 1*time.Second),
		WebhookMaxRetryDelay: getEnvDuration("WEBHOOK_MAX_RETRY_DELAY", 10*time.Second),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", false),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 60),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),

		AuditEnabled:    getEnvBool("AUDIT_ENABLED", true),
		AuditBufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 1000),

		EnvironmentID: getEnv("ENVIRONMENT_ID", "dev"),

		SeedDemoData: getEnvBool("SEED_DEMO_DATA", false),
	}
}

// CallbackURL is the engine's public OAuth callback endpoint, registered
// with providers and used as the redirect_uri on every exchange.
func (c *Config) CallbackURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/oauth/callback"
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	if c.SessionBackend != SessionBackendMemory && c.SessionBackend != SessionBackendRedis {
		return fmt.Errorf("unsupported session backend: %s", c.SessionBackend)
	}
	if c.HMACEnabled && c.HMACKey == "" {
		return fmt.Errorf("HMAC_ENABLED requires HMAC_KEY")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL must be positive")
	}
	if c.RateLimitEnabled && c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_ENABLED requires a positive RATE_LIMIT_RPM")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
