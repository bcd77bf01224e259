// Package config loads service settings from the environment and client
// tuning from YAML.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Common is shared by every service.
type Common struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"my_secret_key"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:19092"`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"chat-messages"`
}

type Scylla struct {
	Hosts    []string `env:"SCYLLA_HOSTS" envSeparator:"," envDefault:"localhost:9042"`
	Keyspace string   `env:"SCYLLA_KEYSPACE" envDefault:"chat"`
}

type Gateway struct {
	Common
	Kafka
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`
}

type API struct {
	Common
	Scylla
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8081"`
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
}

type Messaging struct {
	Common
	Kafka
	Scylla
	GroupID     string `env:"KAFKA_GROUP_ID" envDefault:"messaging-service-group"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9102"`
}

func LoadGateway() (Gateway, error) {
	var cfg Gateway
	err := ParseEnv(&cfg)
	return cfg, err
}

func LoadAPI() (API, error) {
	var cfg API
	err := ParseEnv(&cfg)
	return cfg, err
}

func LoadMessaging() (Messaging, error) {
	var cfg Messaging
	err := ParseEnv(&cfg)
	return cfg, err
}
