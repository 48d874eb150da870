package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
	Billing   BillingConfig
	Tokenizer TokenizerConfig
	Enhancer  EnhancerConfig
	OTEL      OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ProvidersConfig holds API credentials for the supported LLM vendors.
// An empty key disables that vendor's adapter at startup.
type ProvidersConfig struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GroqAPIKey      string
	GroqBaseURL     string
	TogetherAPIKey  string
	TogetherBaseURL string
	GeminiAPIKey    string
	GeminiBaseURL   string
}

// BillingConfig holds the credit pricing knobs. The formula itself lives in
// the billing service; these values are the external billing contract.
type BillingConfig struct {
	BaseRatePerMinute   float64
	SpeakerRateFraction float64
	OperationCost       float64
}

// TokenizerConfig holds the heuristic token estimation settings. Ratios are
// chars-per-token keyed by ISO language code; they have needed empirical
// retuning before, so they are configuration rather than constants.
type TokenizerConfig struct {
	DefaultCharsPerToken float64
	InflationFactor      float64
	LanguageRatios       map[string]float64
}

// EnhancerConfig holds orchestration settings
type EnhancerConfig struct {
	CallTimeoutSeconds  int
	MaxRetries          int
	SafetyMarginTokens  int
	MinOutputTokens     int
	ChunkTokenBudget    int
	Workers             int
	PollIntervalMS      int
	CatalogCacheSeconds int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "scribeflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Providers: ProvidersConfig{
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
			GroqBaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			TogetherAPIKey:  getEnv("TOGETHER_API_KEY", ""),
			TogetherBaseURL: getEnv("TOGETHER_BASE_URL", "https://api.together.xyz/v1"),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		},
		Billing: BillingConfig{
			BaseRatePerMinute:   getEnvAsFloat("BILLING_BASE_RATE_PER_MINUTE", 1.0),
			SpeakerRateFraction: getEnvAsFloat("BILLING_SPEAKER_RATE_FRACTION", 0.5),
			OperationCost:       getEnvAsFloat("BILLING_OPERATION_COST", 0.2),
		},
		Tokenizer: TokenizerConfig{
			DefaultCharsPerToken: getEnvAsFloat("TOKENIZER_DEFAULT_RATIO", 4.0),
			InflationFactor:      getEnvAsFloat("TOKENIZER_INFLATION", 1.3),
			LanguageRatios:       getEnvAsRatioMap("TOKENIZER_LANGUAGE_RATIOS", defaultLanguageRatios()),
		},
		Enhancer: EnhancerConfig{
			CallTimeoutSeconds:  getEnvAsInt("ENHANCER_CALL_TIMEOUT_SECONDS", 120),
			MaxRetries:          getEnvAsInt("ENHANCER_MAX_RETRIES", 2),
			SafetyMarginTokens:  getEnvAsInt("ENHANCER_SAFETY_MARGIN_TOKENS", 1500),
			MinOutputTokens:     getEnvAsInt("ENHANCER_MIN_OUTPUT_TOKENS", 512),
			ChunkTokenBudget:    getEnvAsInt("ENHANCER_CHUNK_TOKEN_BUDGET", 2600),
			Workers:             getEnvAsInt("ENHANCER_WORKERS", 4),
			PollIntervalMS:      getEnvAsInt("ENHANCER_POLL_INTERVAL_MS", 500),
			CatalogCacheSeconds: getEnvAsInt("ENHANCER_CATALOG_CACHE_SECONDS", 3600),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "scribeflow-enhancer"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}, nil
}

// defaultLanguageRatios covers the languages the transcription engine ships
// with. Non-Latin scripts and agglutinative languages produce more tokens per
// character, so they get lower chars-per-token ratios.
func defaultLanguageRatios() map[string]float64 {
	return map[string]float64{
		"en": 4.0,
		"de": 3.6,
		"fr": 3.8,
		"es": 3.8,
		"vi": 3.2,
		"tr": 2.8,
		"ru": 2.6,
		"ar": 2.4,
		"ko": 2.0,
		"ja": 1.8,
		"zh": 1.6,
	}
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsRatioMap parses "tr:2.8,ja:1.8" style overrides on top of defaults.
func getEnvAsRatioMap(key string, defaults map[string]float64) map[string]float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaults
	}

	ratios := make(map[string]float64, len(defaults))
	for lang, ratio := range defaults {
		ratios[lang] = ratio
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		ratio, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || ratio <= 0 {
			continue
		}
		ratios[strings.ToLower(parts[0])] = ratio
	}

	return ratios
}
