package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	GatewayURL       string
	GatewayTimeout   time.Duration
	PollInterval     time.Duration
	ConsolePort      string
	FrontendURL      string
	ConsoleRate      string
	RedisURL         string
	RedisChannel     string
	RabbitMQURL      string
	RabbitMQExchange string
	DebugMode        bool
	EnableHSTS       bool
	OTELEnabled      bool
	OTELEndpoint     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		GatewayURL:       getEnv("GATEWAY_URL", "http://localhost:8080"),
		GatewayTimeout:   getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 5*time.Second),
		ConsolePort:      getEnv("CONSOLE_PORT", "3000"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		ConsoleRate:      getEnv("CONSOLE_RATE", "10-S"),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisChannel:     getEnv("REDIS_CHANNEL", "gateway.metrics"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "gateway_metrics"),
		DebugMode:        getEnvBool("DEBUG_MODE", false),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that cannot be defaulted away. Call it again after
// applying command-line overrides.
func (c *Config) Validate() error {
	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GATEWAY_URL must be an absolute URL, got %q", c.GatewayURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.GatewayTimeout < 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT cannot be negative, got %s", c.GatewayTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
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

// getEnvDuration accepts Go duration strings ("5s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
