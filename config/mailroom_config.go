package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// Service auth
	JWTSecret string

	// Mailbox secrets
	MailboxEncryptionKey string

	// OpenAI (semantic classification + extraction)
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// Ingestion
	LookbackDays        int
	BodyExcerptRunes    int
	ConfidenceFloor     int
	TenantLockTTL       time.Duration
	OpenCountCacheTTL   time.Duration
	MessageTimeout      time.Duration
	MailboxFetchTimeout time.Duration

	// Scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	SchedulerWorkers  int

	// Snowflake shard for pipeline-generated row IDs
	SnowflakeShard int

	// PDF extraction
	PdftotextPath string

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailroom"),

		JWTSecret: getEnv("SERVICE_JWT_SECRET", ""),

		MailboxEncryptionKey: getEnv("MAILBOX_ENCRYPTION_KEY", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 45),

		LookbackDays:        getEnvInt("INGESTION_LOOKBACK_DAYS", 7),
		BodyExcerptRunes:    getEnvInt("BODY_EXCERPT_RUNES", 2000),
		ConfidenceFloor:     getEnvInt("EXTRACTION_CONFIDENCE_FLOOR", 40),
		TenantLockTTL:       time.Duration(getEnvInt("TENANT_LOCK_TTL_SEC", 600)) * time.Second,
		OpenCountCacheTTL:   time.Duration(getEnvInt("OPEN_COUNT_CACHE_SEC", 60)) * time.Second,
		MessageTimeout:      time.Duration(getEnvInt("MESSAGE_TIMEOUT_SEC", 90)) * time.Second,
		MailboxFetchTimeout: time.Duration(getEnvInt("MAILBOX_FETCH_TIMEOUT_SEC", 120)) * time.Second,

		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_SEC", 300)) * time.Second,
		SchedulerWorkers:  getEnvInt("SCHEDULER_WORKERS", 4),

		SnowflakeShard: getEnvInt("SNOWFLAKE_SHARD", 1),

		PdftotextPath: getEnv("PDFTOTEXT_PATH", "pdftotext"),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
