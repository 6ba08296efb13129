// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Reddit   RedditConfig
	WebSub   WebSubConfig
	Logging  LoggingConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	DispatchTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// URL returns the connection string for the configured database.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig contains the optional task queue configuration.
// An empty URL disables the queue and dispatch runs inline.
type RedisConfig struct {
	URL string
}

// RabbitMQConfig contains the optional submission event publisher configuration.
// An empty host disables publishing.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Host       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
	Port       int
}

// RedditConfig contains Reddit API client configuration.
type RedditConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
}

// WebSubConfig contains PubSubHubbub subscription configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type WebSubConfig struct {
	HubURL          string
	LeaseSeconds    int
	RenewalInterval time.Duration
	RenewalWindow   time.Duration
	RenewalBatch    int
	MaxPayloadSize  int64
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)
	viper.SetDefault("server.dispatchtimeout", 60*time.Second)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "youtube_reddit_relay")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 5)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis (dispatch queue, optional)
	viper.SetDefault("redis.url", "")

	// RabbitMQ (submission events, optional)
	viper.SetDefault("rabbitmq.host", "")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "reddit.submissions")
	viper.SetDefault("rabbitmq.routingkey", "submission.created")

	// Reddit
	viper.SetDefault("reddit.useragent", "youtube-reddit-relay/1.0")
	viper.SetDefault("reddit.requesttimeout", 15*time.Second)
	viper.SetDefault("reddit.maxretries", 3)

	// WebSub
	viper.SetDefault("websub.huburl", "https://pubsubhubbub.appspot.com/subscribe")
	viper.SetDefault("websub.leaseseconds", 432000) // 5 days
	viper.SetDefault("websub.renewalinterval", 5*time.Minute)
	viper.SetDefault("websub.renewalwindow", 24*time.Hour)
	viper.SetDefault("websub.renewalbatch", 100)
	viper.SetDefault("websub.maxpayloadsize", 1048576) // 1MB

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
