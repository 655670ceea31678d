package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Chat API (outbound)
	ChatAPIURL     string
	ChatAPIKey     string
	ChatAPITimeout time.Duration

	// Inbound webhook
	WebhookSecret          string
	WebhookSignatureFormat string
	WebhookMaxSkew         time.Duration
	WebhookDedupTTL        time.Duration
	WebhookRateLimit       float64
	WebhookRateBurst       int

	// Circuit breaker
	BreakerKeyPrefix        string
	BreakerFailureThreshold int
	BreakerFailureWindow    time.Duration
	BreakerCooldown         time.Duration

	// Rate limiter
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitDeferWait time.Duration

	// Retry policy
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Reminders
	ReminderInterval  time.Duration
	ReminderLookahead time.Duration

	// Conversation
	ConversationStateTTL time.Duration
	RuleCacheTTL         time.Duration
	FallbackRole         string

	// Queues
	OutboundQueueURL string
	InboundQueueURL  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ChatAPIURL:     getEnv("CHAT_API_URL", ""),
		ChatAPIKey:     getEnv("CHAT_API_KEY", ""),
		ChatAPITimeout: getEnvAsDuration("CHAT_API_TIMEOUT", 5*time.Second),

		WebhookSecret:          getEnv("WEBHOOK_SECRET", ""),
		WebhookSignatureFormat: strings.ToLower(strings.TrimSpace(getEnv("WEBHOOK_SIGNATURE_FORMAT", "any"))),
		WebhookMaxSkew:         getEnvAsDuration("WEBHOOK_MAX_SKEW", 300*time.Second),
		WebhookDedupTTL:        getEnvAsDuration("WEBHOOK_DEDUP_TTL", 10*time.Minute),
		WebhookRateLimit:       getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:       getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		BreakerKeyPrefix:        getEnv("BREAKER_KEY_PREFIX", "chatapi"),
		BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerFailureWindow:    getEnvAsDuration("BREAKER_FAILURE_WINDOW", 5*time.Minute),
		BreakerCooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 10*time.Minute),

		RateLimitPerWindow: getEnvAsInt("RATE_LIMIT_PER_WINDOW", 60),
		RateLimitWindow:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitDeferWait: getEnvAsDuration("RATE_LIMIT_DEFER_WAIT", time.Minute),

		MaxRetries:     getEnvAsInt("DISPATCH_MAX_RETRIES", 3),
		RetryBaseDelay: getEnvAsDuration("DISPATCH_RETRY_BASE_DELAY", time.Minute),

		ReminderInterval:  getEnvAsDuration("REMINDER_INTERVAL", 24*time.Hour),
		ReminderLookahead: getEnvAsDuration("REMINDER_LOOKAHEAD", 48*time.Hour),

		ConversationStateTTL: getEnvAsDuration("CONVERSATION_STATE_TTL", 24*time.Hour),
		RuleCacheTTL:         getEnvAsDuration("RULE_CACHE_TTL", 30*time.Second),
		FallbackRole:         getEnv("FALLBACK_ROLE", "manager"),

		OutboundQueueURL: getEnv("OUTBOUND_QUEUE_URL", ""),
		InboundQueueURL:  getEnv("INBOUND_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
