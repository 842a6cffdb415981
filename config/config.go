package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings for the background service, the page
// scanner and the CLI.
type Config struct {
	Host           string
	Port           string
	AllowedOrigins []string
	Debug          bool

	// Storage backend: "memory", "postgres" or "redis".
	StoreBackend string
	DatabaseURL  string
	RedisAddr    string
	RedisDB      int

	// Exchange rate
	ExchangeAPIURL  string
	RateTTL         time.Duration
	FallbackRate    float64
	RateRetryAfter  time.Duration
	RateRefreshCron string

	// Alternate page fetching
	RequestTimeout time.Duration
	FetchPerSecond float64
	FetchBurst     int
	UserAgent      string
	RequestsPerSec float64 // inbound HTTP rate limit per client

	// Listing scanner
	BatchSize     int
	BatchDelay    time.Duration
	DebounceDelay time.Duration

	// Legacy tab flow
	BrowserBin string
	RenderWait time.Duration
	Headless   bool
}

// Load reads configuration from the environment, falling back to defaults.
func Load() *Config {
	return &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"chrome-extension://*", "http://localhost:3000"}),
		Debug:          getEnvBool("NPC_DEBUG", false),

		StoreBackend: getEnv("NPC_STORE", "memory"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		ExchangeAPIURL:  getEnv("NPC_EXCHANGE_API_URL", "https://api.frankfurter.app"),
		RateTTL:         getEnvDuration("NPC_RATE_TTL", 24*time.Hour),
		FallbackRate:    getEnvFloat("NPC_FALLBACK_RATE", 4.6),
		RateRetryAfter:  getEnvDuration("NPC_RATE_RETRY_AFTER", time.Minute),
		RateRefreshCron: getEnv("NPC_RATE_REFRESH_CRON", "0 0 */6 * * *"),

		RequestTimeout: getEnvDuration("NPC_REQUEST_TIMEOUT", 20*time.Second),
		FetchPerSecond: getEnvFloat("NPC_FETCH_PER_SECOND", 5),
		FetchBurst:     getEnvInt("NPC_FETCH_BURST", 10),
		UserAgent: getEnv("NPC_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		RequestsPerSec: getEnvFloat("API_REQUESTS_PER_SECOND", 20),

		BatchSize:     getEnvInt("NPC_BATCH_SIZE", 10),
		BatchDelay:    getEnvDuration("NPC_BATCH_DELAY", 800*time.Millisecond),
		DebounceDelay: getEnvDuration("NPC_DEBOUNCE_DELAY", 200*time.Millisecond),

		BrowserBin: getEnv("NPC_BROWSER_BIN", ""),
		RenderWait: getEnvDuration("NPC_RENDER_WAIT", time.Second),
		Headless:   getEnvBool("NPC_HEADLESS", true),
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
