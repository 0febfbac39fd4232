package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	IsProduction bool

	// Read cache
	RedisAddr     string
	RedisPassword string
	SnapshotTTL   time.Duration

	// Asynchronous transaction relay
	RelayEnabled     bool
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroupID     string
	RelayMaxAttempts int
	RelayBackoff     time.Duration

	// Gateway rate limit, e.g. "100-S" (requests per period)
	RateLimit string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("SNAPSHOT_TTL", "60s")
	viper.SetDefault("RELAY_ENABLED", false)
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")
	viper.SetDefault("KAFKA_TOPIC", "ledger.transactions")
	viper.SetDefault("KAFKA_GROUP_ID", "ledger-relay")
	viper.SetDefault("RELAY_MAX_ATTEMPTS", 5)
	viper.SetDefault("RELAY_BACKOFF", "100ms")
	viper.SetDefault("RATE_LIMIT", "")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")

	cfg.RedisAddr = viper.GetString("REDIS_ADDR")
	cfg.RedisPassword = viper.GetString("REDIS_PASSWORD")

	snapshotTTLStr := viper.GetString("SNAPSHOT_TTL")
	snapshotTTL, err := time.ParseDuration(snapshotTTLStr)
	if err != nil {
		snapshotTTL = 60 * time.Second
		log.Printf("Warning: Invalid value for SNAPSHOT_TTL ('%s'). Defaulting to %s.\n", snapshotTTLStr, snapshotTTL)
	}
	cfg.SnapshotTTL = snapshotTTL

	cfg.RelayEnabled = viper.GetBool("RELAY_ENABLED")
	cfg.KafkaBrokers = strings.Split(viper.GetString("KAFKA_BROKERS"), ",")
	cfg.KafkaTopic = viper.GetString("KAFKA_TOPIC")
	cfg.KafkaGroupID = viper.GetString("KAFKA_GROUP_ID")

	cfg.RelayMaxAttempts = viper.GetInt("RELAY_MAX_ATTEMPTS")
	if cfg.RelayMaxAttempts < 1 {
		cfg.RelayMaxAttempts = 1
		log.Println("Warning: RELAY_MAX_ATTEMPTS must be at least 1. Defaulting to 1.")
	}

	relayBackoffStr := viper.GetString("RELAY_BACKOFF")
	relayBackoff, err := time.ParseDuration(relayBackoffStr)
	if err != nil {
		relayBackoff = 100 * time.Millisecond
		log.Printf("Warning: Invalid value for RELAY_BACKOFF ('%s'). Defaulting to %s.\n", relayBackoffStr, relayBackoff)
	}
	cfg.RelayBackoff = relayBackoff

	cfg.RateLimit = viper.GetString("RATE_LIMIT")

	return cfg, nil
}
