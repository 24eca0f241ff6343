package config

import (
	"strconv"
	"strings"
	"time"

	"os"
)

// Config carries process-level settings sourced from the environment.
// Pipeline tuning knobs live in the on-disk Pipeline struct (config.json)
// so the operator can adjust them without redeploying.
type Config struct {
	DatabaseURL      string
	GoogleMapsAPIKey string
	OpenAIAPIKey     string
	DataDir          string

	// Feature flags
	GooglePlacesEnabled bool

	// Curation bridge (serve mode)
	Port          string
	AdminToken    string // shared secret for the callback endpoint
	MetricsPath   string
	MetricsEnable bool

	// OpenAI client settings
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	// Database performance settings
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime int // minutes
	DBConnMaxIdleTime int // minutes
	DBReadTimeout     time.Duration
	DBWriteTimeout    time.Duration

	// Logging
	LogLevel          string
	LogFormat         string // "json" or "text"
	LogFile           string
	EnableFileLogging bool

	// Prompts templates overrides
	PromptDir string // path to external templates dir; empty = embedded only

	Env string // development, staging, production
}

// Load reads the environment with defaults. godotenv/autoload in main makes
// a local .env file visible before this runs.
func Load() *Config {
	openAITemp, _ := strconv.ParseFloat(getEnv("OPENAI_TEMPERATURE", "0.2"), 64)
	openAIMaxTokens, _ := strconv.Atoi(getEnv("OPENAI_MAX_TOKENS", "900"))
	openAIReqTimeoutSec, _ := strconv.Atoi(getEnv("OPENAI_REQUEST_TIMEOUT_SECONDS", "90"))

	dbMaxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	dbMaxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	dbConnMaxLifetime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_LIFETIME_MINUTES", "10"))
	dbConnMaxIdleTime, _ := strconv.Atoi(getEnv("DB_CONN_MAX_IDLE_TIME_MINUTES", "5"))
	dbReadTO, _ := time.ParseDuration(getEnv("DB_READ_TIMEOUT", "8s"))
	dbWriteTO, _ := time.ParseDuration(getEnv("DB_WRITE_TIMEOUT", "6s"))

	enableFileLogging, _ := strconv.ParseBool(getEnv("ENABLE_FILE_LOGGING", "false"))
	metricsEnabled, _ := strconv.ParseBool(getEnv("METRICS_ENABLED", "true"))

	// The Places flag must be exactly "true"; anything else leaves seeding
	// disabled so a typo can never burn provider quota.
	placesEnabled := os.Getenv("GOOGLE_PLACES_ENABLED") == "true"

	env := strings.ToLower(getEnv("ENV", "development"))

	return &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		DataDir:          getEnv("DATA_DIR", "./data"),

		GooglePlacesEnabled: placesEnabled,

		Port:          getEnv("PORT", "8080"),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		MetricsPath:   getEnv("METRICS_PATH", "/metrics"),
		MetricsEnable: metricsEnabled,

		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature: openAITemp,
		OpenAIMaxTokens:   openAIMaxTokens,
		OpenAITimeout:     time.Duration(openAIReqTimeoutSec) * time.Second,

		DBMaxOpenConns:    dbMaxOpenConns,
		DBMaxIdleConns:    dbMaxIdleConns,
		DBConnMaxLifetime: dbConnMaxLifetime,
		DBConnMaxIdleTime: dbConnMaxIdleTime,
		DBReadTimeout:     dbReadTO,
		DBWriteTimeout:    dbWriteTO,

		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		LogFile:           getEnv("LOG_FILE", ""),
		EnableFileLogging: enableFileLogging,

		PromptDir: getEnv("PROMPT_DIR", ""),

		Env: env,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
