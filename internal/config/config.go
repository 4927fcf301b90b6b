package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Hold    HoldConfig
	Payment PaymentConfig
	Storage StorageConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

type HoldConfig struct {
	// TTLSeconds is the fixed hold time budget; the countdown is anchored
	// at the moment of the reserve request, not the server clock.
	TTLSeconds int
}

type PaymentConfig struct {
	// Debounce coalesces bursts of payment-session triggers into one attempt.
	Debounce time.Duration
}

type StorageConfig struct {
	// Path to the sqlite file backing the local ticket store.
	Path        string
	ArtifactDir string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BOOKING_API_URL", "http://localhost:3000"),
			Timeout: time.Duration(getEnvInt("BOOKING_API_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
		Hold: HoldConfig{
			TTLSeconds: getEnvInt("HOLD_TTL_SECONDS", 900),
		},
		Payment: PaymentConfig{
			Debounce: time.Duration(getEnvInt("PAYMENT_DEBOUNCE_MS", 250)) * time.Millisecond,
		},
		Storage: StorageConfig{
			Path:        getEnv("STORAGE_PATH", "data/bus-booking.db"),
			ArtifactDir: getEnv("ARTIFACT_DIR", "data/artifacts"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
