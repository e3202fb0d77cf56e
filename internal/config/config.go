package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Provider credentials
	OpenAIAPIKey   string
	DeepseekAPIKey string
	GeminiAPIKey   string

	// AWS / Bedrock (Claude models)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BedrockModelID      string

	// History store backend: "memory", "redis" or "dynamodb"
	HistoryBackend string
	HistoryTable   string

	// Generation defaults
	DefaultModel       string
	DefaultTemperature float64
	ContextWindowTurns int
	MemoryModel        string
	MemoryTemperature  float64
	AnalysisModel      string
	EvaluatorModel     string
	ProviderTimeout    time.Duration

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		DeepseekAPIKey: getEnv("DEEPSEEK_API_KEY", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-5-sonnet-20241022-v2:0"),

		HistoryBackend: strings.ToLower(strings.TrimSpace(getEnv("HISTORY_BACKEND", "memory"))),
		HistoryTable:   getEnv("HISTORY_TABLE", "workbench_history"),

		DefaultModel:       getEnv("DEFAULT_MODEL", "gpt-4o"),
		DefaultTemperature: getEnvAsFloat("DEFAULT_TEMPERATURE", 0.7),
		ContextWindowTurns: getEnvAsInt("CONTEXT_WINDOW_TURNS", 15),
		MemoryModel:        getEnv("MEMORY_MODEL", "gpt-3.5-turbo"),
		MemoryTemperature:  getEnvAsFloat("MEMORY_TEMPERATURE", 0.3),
		AnalysisModel:      getEnv("ANALYSIS_MODEL", "gpt-4o-mini"),
		EvaluatorModel:     getEnv("EVALUATOR_MODEL", "gpt-4o-mini"),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 60*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
