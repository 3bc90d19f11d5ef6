package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel string
	HTTPAddr string

	// Store
	StoreBackend  string // sqlite, redis or memory
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Strategy
	StrategiesPath string
	ActiveStrategy string

	// Scan cycle
	ScanInterval    time.Duration
	BatchSize       int
	BatchPause      time.Duration
	FetchTimeout    time.Duration
	Cooldown        time.Duration
	RatchetLiveExit bool
	ScanLogSize     int
	ScanLogRetain   time.Duration // sqlite scan-log retention
	MarketInterval  string
	Assets          string // SYMBOL:CLASS[:Name],... (empty = built-in universe)

	// Event publishing
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StrategiesPath: getEnv("STRATEGIES_PATH", ""),
		ActiveStrategy: getEnv("ACTIVE_STRATEGY", ""),

		ScanInterval:    time.Duration(getEnvPositiveInt("SCAN_INTERVAL_SEC", 60)) * time.Second,
		BatchSize:       getEnvPositiveInt("SCAN_BATCH_SIZE", 3),
		BatchPause:      time.Duration(getEnvInt("SCAN_BATCH_PAUSE_MS", 1000)) * time.Millisecond,
		FetchTimeout:    time.Duration(getEnvPositiveInt("FETCH_TIMEOUT_SEC", 10)) * time.Second,
		Cooldown:        time.Duration(getEnvInt("COOLDOWN_MIN", 30)) * time.Minute,
		RatchetLiveExit: getEnvBool("RATCHET_LIVE_EXIT", false),
		ScanLogSize:     getEnvInt("SCANLOG_SIZE", 50),
		ScanLogRetain:   time.Duration(getEnvInt("SCANLOG_RETENTION_H", 72)) * time.Hour,
		MarketInterval:  getEnv("MARKET_INTERVAL", "15m"),
		Assets:          getEnv("ASSETS", ""),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "signal-events"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// getEnvPositiveInt is getEnvInt for settings where zero is meaningless.
func getEnvPositiveInt(key string, fallback int) int {
	n := getEnvInt(key, fallback)
	if n == 0 {
		log.Printf("[config] %s must be positive, using %d", key, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
