package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the service.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Optional YAML config file pointed to by CONFIG_FILE
//  3. Environment variables (highest priority)
type Config struct {
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`

	Redis   RedisConfig   `yaml:"redis"`
	Auth    AuthConfig    `yaml:"auth"`
	Retry   RetryConfig   `yaml:"retry"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Scaler  ScalerConfig  `yaml:"scaler"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// RedisConfig configures the transaction store backend.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// AuthConfig configures the intake API token.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// RetryConfig configures the retry sweeper.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// KafkaConfig configures the workflow event publisher.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers"`
	Topic            string `yaml:"topic"`
	Enabled          bool   `yaml:"enabled"`
}

// ScalerConfig configures the browser-grid autoscaler.
type ScalerConfig struct {
	Enabled              bool   `yaml:"enabled"`
	MinNodes             int    `yaml:"min_nodes"`
	MaxNodes             int    `yaml:"max_nodes"`
	SessionsPerNode      int    `yaml:"sessions_per_node"`
	IdleTimeoutSeconds   int    `yaml:"idle_timeout_seconds"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	HubURL               string `yaml:"hub_url"`
	ProjectDir           string `yaml:"project_dir"`
}

// SecretsConfig configures credential decryption for the password store.
type SecretsConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
	PasswordFile  string `yaml:"password_file"`
}

// LoadConfig builds the configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: "development",
		Port:        8000,
		LogLevel:    "INFO",
		Redis: RedisConfig{
			URL:     "redis://localhost:6379",
			Enabled: true,
		},
		Retry: RetryConfig{MaxAttempts: 3},
		Kafka: KafkaConfig{
			BootstrapServers: "localhost:29092",
			Topic:            "workflow-events",
		},
		Scaler: ScalerConfig{
			Enabled:              true,
			MinNodes:             0,
			MaxNodes:             3,
			SessionsPerNode:      2,
			IdleTimeoutSeconds:   600,
			CheckIntervalSeconds: 60,
			HubURL:               "http://localhost:4444",
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, ErrInvalidConfiguration)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, ErrInvalidConfiguration)
		}
	}

	cfg.Environment = envString("ENVIRONMENT", cfg.Environment)
	cfg.Port = envInt("PORT", cfg.Port)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)

	cfg.Redis.URL = envString("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Enabled = envBool("REDIS_ENABLED", cfg.Redis.Enabled)

	cfg.Auth.Token = loadAPIToken(cfg.Auth.Token)

	cfg.Retry.MaxAttempts = envInt("MAX_RETRY_ATTEMPTS", cfg.Retry.MaxAttempts)

	cfg.Kafka.BootstrapServers = envString("KAFKA_BOOTSTRAP_SERVERS", cfg.Kafka.BootstrapServers)
	cfg.Kafka.Topic = envString("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.Enabled = envBool("KAFKA_ENABLED", cfg.Kafka.Enabled)

	cfg.Scaler.Enabled = envBool("SELENIUM_SCALE_ENABLED", cfg.Scaler.Enabled)
	cfg.Scaler.MinNodes = envInt("SELENIUM_MIN_NODES", cfg.Scaler.MinNodes)
	cfg.Scaler.MaxNodes = envInt("SELENIUM_MAX_NODES", cfg.Scaler.MaxNodes)
	cfg.Scaler.SessionsPerNode = envInt("SELENIUM_SESSIONS_PER_NODE", cfg.Scaler.SessionsPerNode)
	cfg.Scaler.IdleTimeoutSeconds = envInt("SELENIUM_IDLE_TIMEOUT", cfg.Scaler.IdleTimeoutSeconds)
	cfg.Scaler.CheckIntervalSeconds = envInt("SELENIUM_CHECK_INTERVAL", cfg.Scaler.CheckIntervalSeconds)
	cfg.Scaler.HubURL = envString("SELENIUM_HUB_URL", cfg.Scaler.HubURL)
	cfg.Scaler.ProjectDir = envString("SELENIUM_PROJECT_DIR", cfg.Scaler.ProjectDir)

	cfg.Secrets.EncryptionKey = envString("CREDENTIALS_KEY", cfg.Secrets.EncryptionKey)
	cfg.Secrets.PasswordFile = envString("CREDENTIALS_FILE", cfg.Secrets.PasswordFile)

	return cfg, nil
}

// loadAPIToken resolves the intake token from API_AUTH_TOKEN, then from a
// file pointed to by API_AUTH_TOKEN_FILE, then from the config file value.
func loadAPIToken(fallback string) string {
	if token := os.Getenv("API_AUTH_TOKEN"); token != "" {
		return token
	}
	if path := os.Getenv("API_AUTH_TOKEN_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token
			}
		}
	}
	return fallback
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
