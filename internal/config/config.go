// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the chip bank service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Transfer TransferConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	// DSN is a lib/pq connection string. Empty means the in-memory store.
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type TransferConfig struct {
	// MaxAmount caps the chips moved by a single transfer.
	MaxAmount int64
	// TxTimeout bounds each unit of work.
	TxTimeout time.Duration
}

type KafkaConfig struct {
	// Brokers is empty when event publishing is disabled.
	Brokers []string
	Topic   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: 8080,
		},
		Database: DatabaseConfig{
			DSN:             os.Getenv("DATABASE_DSN"),
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Transfer: TransferConfig{
			MaxAmount: 5000,
			TxTimeout: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: getEnv("KAFKA_TOPIC", "chip-transfers"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if raw := os.Getenv("SERVER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid SERVER_PORT %q", raw)
		}
		cfg.Server.Port = port
	}

	if raw := os.Getenv("MAX_TRANSFER"); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || max <= 0 {
			return nil, fmt.Errorf("invalid MAX_TRANSFER %q", raw)
		}
		cfg.Transfer.MaxAmount = max
	}

	if raw := os.Getenv("TRANSFER_TX_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid TRANSFER_TX_TIMEOUT %q", raw)
		}
		cfg.Transfer.TxTimeout = timeout
	}

	if raw := os.Getenv("DATABASE_MAX_OPEN_CONNS"); raw != "" {
		conns, err := strconv.Atoi(raw)
		if err != nil || conns <= 0 {
			return nil, fmt.Errorf("invalid DATABASE_MAX_OPEN_CONNS %q", raw)
		}
		cfg.Database.MaxOpenConns = conns
	}

	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, broker)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
