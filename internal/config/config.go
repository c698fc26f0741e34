/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transfer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	KeycloakJWKSURL            string `mapstructure:"KEYCLOAK_JWKS_URL"`
	KeycloakIssuer             string `mapstructure:"KEYCLOAK_ISSUER"`
	KeycloakAudience           string `mapstructure:"KEYCLOAK_AUDIENCE"`
	AccountServiceURL          string `mapstructure:"ACCOUNT_SERVICE_URL"`
	AuthServiceURL             string `mapstructure:"AUTH_SERVICE_URL"`
	CallTimeoutSeconds         int    `mapstructure:"CALL_TIMEOUT_SECONDS"`
	SagaTimeoutSeconds         int    `mapstructure:"SAGA_TIMEOUT_SECONDS"`
	AdjustRetries              int    `mapstructure:"ADJUST_RETRIES"`
	CompensationRetries        int    `mapstructure:"COMPENSATION_RETRIES"`
	RetryBackoffMillis         int    `mapstructure:"RETRY_BACKOFF_MILLIS"`
	MaxConcurrentTransfers     int64  `mapstructure:"MAX_CONCURRENT_TRANSFERS"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	EventQueueSize             int    `mapstructure:"EVENT_QUEUE_SIZE"`
	EventPublishRetries        int    `mapstructure:"EVENT_PUBLISH_RETRIES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "microbank:rate_limit")
	viper.SetDefault("CALL_TIMEOUT_SECONDS", 5)
	viper.SetDefault("SAGA_TIMEOUT_SECONDS", 60)
	viper.SetDefault("ADJUST_RETRIES", 3)
	viper.SetDefault("COMPENSATION_RETRIES", 5)
	viper.SetDefault("RETRY_BACKOFF_MILLIS", 200)
	viper.SetDefault("MAX_CONCURRENT_TRANSFERS", 32)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("EVENT_QUEUE_SIZE", 256)
	viper.SetDefault("EVENT_PUBLISH_RETRIES", 8)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "TRANSFER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("KEYCLOAK_JWKS_URL")
	_ = viper.BindEnv("KEYCLOAK_ISSUER")
	_ = viper.BindEnv("KEYCLOAK_AUDIENCE")
	_ = viper.BindEnv("ACCOUNT_SERVICE_URL")
	_ = viper.BindEnv("AUTH_SERVICE_URL")
	_ = viper.BindEnv("CALL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("SAGA_TIMEOUT_SECONDS")
	_ = viper.BindEnv("ADJUST_RETRIES")
	_ = viper.BindEnv("COMPENSATION_RETRIES")
	_ = viper.BindEnv("RETRY_BACKOFF_MILLIS")
	_ = viper.BindEnv("MAX_CONCURRENT_TRANSFERS")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("EVENT_QUEUE_SIZE")
	_ = viper.BindEnv("EVENT_PUBLISH_RETRIES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "microbank:rate_limit"
	}

	if config.CallTimeoutSeconds <= 0 {
		config.CallTimeoutSeconds = 5
	}
	if config.SagaTimeoutSeconds <= 0 {
		config.SagaTimeoutSeconds = 60
	}
	if config.SagaTimeoutSeconds < config.CallTimeoutSeconds {
		log.Printf("level=warn component=config msg=\"saga timeout below call timeout; raising\" saga_timeout_s=%d call_timeout_s=%d", config.SagaTimeoutSeconds, config.CallTimeoutSeconds)
		config.SagaTimeoutSeconds = config.CallTimeoutSeconds
	}
	if config.AdjustRetries <= 0 {
		config.AdjustRetries = 3
	}
	if config.CompensationRetries <= 0 {
		config.CompensationRetries = 5
	}
	if config.RetryBackoffMillis <= 0 {
		config.RetryBackoffMillis = 200
	}
	if config.MaxConcurrentTransfers <= 0 {
		config.MaxConcurrentTransfers = 32
	}
	if config.TransferRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer rate limit configured; disabling\" limit=%d", config.TransferRateLimitPerMinute)
		config.TransferRateLimitPerMinute = 0
	}
	if config.EventQueueSize <= 0 {
		config.EventQueueSize = 256
	}
	if config.EventPublishRetries <= 0 {
		config.EventPublishRetries = 8
	}

	return
}
