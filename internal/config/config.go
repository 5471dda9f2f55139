// Package config loads tripstream configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	NATS        NATSConfig        `mapstructure:"nats"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	URL           string `mapstructure:"url"`
	MigrationsURL string `mapstructure:"migrations_url"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

type ObjectStoreConfig struct {
	Root string `mapstructure:"root"`
}

type OpenSearchConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	Index         string `mapstructure:"index"`
}

type IngestConfig struct {
	Durable string `mapstructure:"durable"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional YAML file with environment
// overrides under the TRIPSTREAM prefix.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "tripstream")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_url", "file://migrations")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dedup_ttl", "15m")
	v.SetDefault("object_store.root", "./data/objects")
	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index", "tripstream-quarantine")
	v.SetDefault("ingest.durable", "trip-ingest")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tripstream")
	}

	// Environment variables override
	v.SetEnvPrefix("TRIPSTREAM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
