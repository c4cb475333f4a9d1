package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	DatabaseURL string
	RedisURL    string

	// GeminiAPIKey may hold several keys separated by commas. Numbered
	// fallback variables GEMINI_API_KEY_2..GEMINI_API_KEY_9 are appended.
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	TelegramBotToken string
	TelegramAPIBase  string

	WeatherBaseURL string

	OTLPEndpoint     string
	AWSRegion        string
	SNSTopicARN      string
	GeminiKeysSecret string
	EncryptionKey    string

	ChatRateLimit      int
	ChatRateWindow     time.Duration
	ReportRateLimit    int
	ReportRateWindow   time.Duration
	MaxToolRounds      int
	CacheSweepInterval time.Duration
	ShutdownTimeout    time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:               getEnv("ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIBase:    getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		WeatherBaseURL:     getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1"),
		OTLPEndpoint:       getEnv("OTLP_ENDPOINT", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		SNSTopicARN:        getEnv("SNS_TOPIC_ARN", ""),
		GeminiKeysSecret:   getEnv("GEMINI_KEYS_SECRET", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		ChatRateLimit:      getIntEnv("CHAT_RATE_LIMIT", 20),
		ChatRateWindow:     getDurationEnv("CHAT_RATE_WINDOW", time.Minute),
		ReportRateLimit:    getIntEnv("REPORT_RATE_LIMIT", 10),
		ReportRateWindow:   getDurationEnv("REPORT_RATE_WINDOW", time.Minute),
		MaxToolRounds:      getIntEnv("MAX_TOOL_ROUNDS", 4),
		CacheSweepInterval: getDurationEnv("CACHE_SWEEP_INTERVAL", time.Hour),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

// FallbackKeyVars returns the numbered fallback credential variables that are
// set in the environment, in order.
func FallbackKeyVars() []string {
	var keys []string
	for i := 2; i <= 9; i++ {
		if v := os.Getenv("GEMINI_API_KEY_" + strconv.Itoa(i)); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
