package env

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv        string
	AppPort       string
	TZ            string
	JWTSecret     string
	JWTIssuer     string
	TokenTTLHours int

	RedisURL string

	MongoURI string
	DBName   string

	APIRateLimitRPM     int
	AuthRateLimitMax    int
	AuthRateLimitWindow int
	AuthRateLimitBlock  int

	// Exotel telephony
	ExotelSubdomain         string
	ExotelAccountSID        string
	ExotelAPIKey            string
	ExotelAPIToken          string
	ExotelCallerID          string
	ExotelWebhookSecret     string
	ExotelStatusCallbackURL string

	// WhatsApp Business (Meta Graph API)
	WhatsAppAPIVersion        string
	WhatsAppAccessToken       string
	WhatsAppPhoneNumberID     string
	WhatsAppBusinessAccountID string
	WhatsAppAppSecret         string
	WhatsAppVerifyToken       string
	WhatsAppSendPerMinute     int

	// Surepass KYC
	SurepassBaseURL string
	SurepassToken   string

	// Google Tag Manager
	GTMCredentialsJSON string
	GTMCredentialsFile string
	GTMAccountID       string
	GTMContainerID     string
	GTMWorkspaceID     string

	// Tracking fan-out relays (optional)
	TrackingRedisChannel string
	NATSURL              string
	NATSSubject          string

	TemplateSyncCron string

	StorageDriver    string
	LocalStoragePath string

	HTTPTimeout time.Duration

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint    string
	OTELEnabled     bool
	OTELSampleRatio float64
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// A missing .env is fine; production injects plain environment variables.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		AppPort:       getEnv("APP_PORT", "8080"),
		TZ:            getEnv("TZ", "Asia/Kolkata"),
		JWTSecret:     mustGetEnv("JWT_SECRET"),
		JWTIssuer:     getEnv("JWT_ISSUER", "engage-api"),
		TokenTTLHours: getEnvAs("TOKEN_TTL_HOURS", 24, strconv.Atoi),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "engage"),

		APIRateLimitRPM:     getEnvAs("API_RATE_LIMIT_RPM", 300, strconv.Atoi),
		AuthRateLimitMax:    getEnvAs("AUTH_RATE_LIMIT_MAX", 10, strconv.Atoi),
		AuthRateLimitWindow: getEnvAs("AUTH_RATE_LIMIT_WINDOW_SEC", 900, strconv.Atoi),
		AuthRateLimitBlock:  getEnvAs("AUTH_RATE_LIMIT_BLOCK_SEC", 1800, strconv.Atoi),

		ExotelSubdomain:         getEnv("EXOTEL_SUBDOMAIN", "api"),
		ExotelAccountSID:        getEnv("EXOTEL_ACCOUNT_SID", ""),
		ExotelAPIKey:            getEnv("EXOTEL_API_KEY", ""),
		ExotelAPIToken:          getEnv("EXOTEL_API_TOKEN", ""),
		ExotelCallerID:          getEnv("EXOTEL_CALLER_ID", ""),
		ExotelWebhookSecret:     getEnv("EXOTEL_WEBHOOK_SIGNATURE_SECRET", ""),
		ExotelStatusCallbackURL: getEnv("EXOTEL_STATUS_CALLBACK_URL", ""),

		WhatsAppAPIVersion:        getEnv("WHATSAPP_API_VERSION", "v19.0"),
		WhatsAppAccessToken:       getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID:     getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WHATSAPP_BUSINESS_ACCOUNT_ID", ""),
		WhatsAppAppSecret:         getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppVerifyToken:       getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppSendPerMinute:     getEnvAs("WHATSAPP_SEND_PER_MINUTE", 60, strconv.Atoi),

		SurepassBaseURL: getEnv("SUREPASS_BASE_URL", "https://kyc-api.surepass.io"),
		SurepassToken:   getEnv("SUREPASS_TOKEN", ""),

		GTMCredentialsJSON: getEnv("GTM_CREDENTIALS_JSON", ""),
		GTMCredentialsFile: getEnv("GTM_CREDENTIALS_FILE", ""),
		GTMAccountID:       getEnv("GTM_ACCOUNT_ID", ""),
		GTMContainerID:     getEnv("GTM_CONTAINER_ID", ""),
		GTMWorkspaceID:     getEnv("GTM_WORKSPACE_ID", ""),

		TrackingRedisChannel: getEnv("TRACKING_REDIS_CHANNEL", ""),
		NATSURL:              getEnv("NATS_URL", ""),
		NATSSubject:          getEnv("NATS_TRACKING_SUBJECT", "tracking.events"),

		TemplateSyncCron: getEnv("TEMPLATE_SYNC_CRON", "@every 15m"),

		StorageDriver:    getEnv("STORAGE_DRIVER", "exotel-proxy"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "/data/recordings"),

		HTTPTimeout: getEnvAs("HTTP_TIMEOUT", 15*time.Second, time.ParseDuration),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint:    getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:     getEnvAs("OTEL_ENABLED", false, strconv.ParseBool),
		OTELSampleRatio: getEnvAs("OTEL_SAMPLE_RATIO", 1, parseFloat),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	return cfg, nil
}

// IsProduction reports whether internal error detail must be hidden from clients.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GTMEnabled reports whether credentials and the full workspace path are configured.
func (c *Config) GTMEnabled() bool {
	hasCreds := c.GTMCredentialsJSON != "" || c.GTMCredentialsFile != ""
	return hasCreds && c.GTMAccountID != "" && c.GTMContainerID != "" && c.GTMWorkspaceID != ""
}

func (c *Config) ExotelEnabled() bool {
	return c.ExotelAccountSID != "" && c.ExotelAPIKey != "" && c.ExotelAPIToken != ""
}

func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppAccessToken != "" && c.WhatsAppPhoneNumberID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

// getEnvAs parses key with parse, keeping defaultValue when the variable is
// unset or malformed.
func getEnvAs[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := parse(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
