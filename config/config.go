package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/outbound-request-tracker/utils"
)

// Publish modes
const (
	PublishModeSync  = "sync"
	PublishModeAsync = "async"
)

// Queue backends
const (
	QueueBackendSQS      = "sqs"
	QueueBackendPostgres = "postgres"
)

// DefaultLogIDHeader is the response header carrying the log record id
const DefaultLogIDHeader = "acs-log-id"

// Config represents the complete application configuration
type Config struct {
	Environment   string `validate:"required"`
	Tracking      TrackingConfig
	Queue         QueueConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Observability ObservabilityConfig
}

// TrackingConfig holds interceptor and publisher settings
type TrackingConfig struct {
	LogIDHeader     string        `validate:"required"`
	PublishMode     string        `validate:"oneof=sync async"`
	PublishTimeout  time.Duration `validate:"gt=0"`
	DispatchWorkers int           `validate:"gte=1"`
	DispatchBuffer  int           `validate:"gte=1"`
	PropertiesFile  string
}

// QueueConfig selects and configures the queue backend
type QueueConfig struct {
	Backend string `validate:"oneof=sqs postgres"`
	SQS     SQSConfig
}

// SQSConfig holds Amazon SQS client configuration.
// Endpoint is optional and mostly used for local emulators.
type SQSConfig struct {
	Region   string
	Endpoint string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ServerConfig holds the admin HTTP listener configuration
type ServerConfig struct {
	Enabled         bool
	Host            string
	Port            int `validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required"`
	LogFormat      string `validate:"oneof=json text"`
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Tracking: TrackingConfig{
			LogIDHeader:     getEnv("TRACKER_LOG_ID_HEADER", DefaultLogIDHeader),
			PublishMode:     strings.ToLower(getEnv("TRACKER_PUBLISH_MODE", PublishModeSync)),
			PublishTimeout:  getEnvAsDuration("TRACKER_PUBLISH_TIMEOUT", 5*time.Second),
			DispatchWorkers: getEnvAsInt("TRACKER_DISPATCH_WORKERS", 2),
			DispatchBuffer:  getEnvAsInt("TRACKER_DISPATCH_BUFFER", 1000),
			PropertiesFile:  getEnv("TRACKER_PROPERTIES_FILE", "tracker.properties"),
		},
		Queue: QueueConfig{
			Backend: strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendSQS)),
			SQS: SQSConfig{
				Region:   getEnv("AWS_REGION", "us-east-1"),
				Endpoint: getEnv("SQS_ENDPOINT", ""),
			},
		},
		Database: loadDatabaseConfig(),
		Server: ServerConfig{
			Enabled:         getEnvAsBool("ADMIN_ENABLED", false),
			Host:            getEnv("ADMIN_HOST", "127.0.0.1"),
			Port:            getEnvAsInt("ADMIN_PORT", 9090),
			ReadTimeout:     getEnvAsDuration("ADMIN_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("ADMIN_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("ADMIN_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	// Postgres backend needs a database to hold the queue table
	if c.Queue.Backend == QueueBackendPostgres {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required for postgres queue: set DATABASE_URL or DB_HOST")
		}
	}

	if c.Queue.Backend == QueueBackendSQS && c.Queue.SQS.Region == "" {
		return fmt.Errorf("aws region is required for sqs queue")
	}

	return nil
}

// IsAsync returns true if records are published by background workers
func (c *TrackingConfig) IsAsync() bool {
	return c.PublishMode == PublishModeAsync
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the admin HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "tracker"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "tracking"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
