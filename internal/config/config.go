package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Hugging Face inference
	HFAPIKey         string
	HFModel          string
	HFMaxNewTokens   int
	HFTemperature    float64
	HFTopP           float64
	HFTimeoutSeconds int
	HFConcurrentReqs int

	// Quota
	QuotaBackend   string
	QuotaStorePath string
	QuotaLimit     int
	RedisURL       string

	// Conversations
	ContextMaxTurns   int
	SessionTTLMinutes int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port: getEnvOrDefault("PORT", "9005"),
		Env:  getEnvOrDefault("ENV", "development"),

		HFAPIKey:         mustGetEnv("HUGGING_FACE_API_KEY"),
		HFModel:          getEnvOrDefault("HF_MODEL", "facebook/blenderbot-400M-distill"),
		HFMaxNewTokens:   getEnvAsIntOrDefault("HF_MAX_NEW_TOKENS", 150),
		HFTemperature:    getEnvAsFloatOrDefault("HF_TEMPERATURE", 0.7),
		HFTopP:           getEnvAsFloatOrDefault("HF_TOP_P", 0.9),
		HFTimeoutSeconds: getEnvAsIntOrDefault("HF_TIMEOUT_SECONDS", 30),
		HFConcurrentReqs: getEnvAsIntOrDefault("HF_CONCURRENT_REQUESTS", 5),

		QuotaBackend:   getEnvOrDefault("QUOTA_BACKEND", "file"),
		QuotaStorePath: getEnvOrDefault("QUOTA_STORE_PATH", "store.json"),
		QuotaLimit:     getEnvAsIntOrDefault("QUOTA_LIMIT", 10),
		RedisURL:       getEnvOrDefault("REDIS_URL", ""),

		ContextMaxTurns:   getEnvAsIntOrDefault("CONTEXT_MAX_TURNS", 20),
		SessionTTLMinutes: getEnvAsIntOrDefault("SESSION_TTL_MINUTES", 30),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "*"),
	}

	if cfg.QuotaBackend == "redis" && cfg.RedisURL == "" {
		panic("QUOTA_BACKEND is redis but REDIS_URL is not set")
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
