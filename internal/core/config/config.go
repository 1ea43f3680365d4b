package config

import (
	"time"

	"github.com/vietddude/erc20-detector/internal/infra/broker"
	redisclient "github.com/vietddude/erc20-detector/internal/infra/redis"
	"github.com/vietddude/erc20-detector/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	QueueName            string        `yaml:"queue_name"             envconfig:"QUEUE_NAME"`
	RowsPerBatch         int           `yaml:"rows_per_batch"         envconfig:"ROWS_PER_BATCH"`
	PollInterval         time.Duration `yaml:"poll_interval"          envconfig:"POLL_INTERVAL"`
	ErrorBackoffInterval time.Duration `yaml:"error_backoff_interval" envconfig:"ERROR_BACKOFF_INTERVAL"`
	InFlightTimeout      time.Duration `yaml:"in_flight_timeout"      envconfig:"IN_FLIGHT_TIMEOUT"` // 0 = republish on every sweep

	Broker     broker.Config      `yaml:"broker"     envconfig:"BROKER"`
	Database   postgres.Config    `yaml:"database"   envconfig:"DATABASE"`
	Redis      redisclient.Config `yaml:"redis"      envconfig:"REDIS"`
	Server     ServerConfig       `yaml:"server"     envconfig:"SERVER"`
	Logging    LoggingConfig      `yaml:"logging"    envconfig:"LOGGING"`
	Classifier ClassifierConfig   `yaml:"classifier" envconfig:"CLASSIFIER"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"             envconfig:"PORT"`
	BacklogInterval time.Duration `yaml:"backlog_interval" envconfig:"BACKLOG_INTERVAL"`
	FailedThreshold int           `yaml:"failed_threshold" envconfig:"FAILED_THRESHOLD"` // 0 = ignore failed backlog
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  envconfig:"LEVEL"`  // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// ClassifierConfig holds the token allow-list.
type ClassifierConfig struct {
	AllowedTokens []string `yaml:"allowed_tokens" envconfig:"ALLOWED_TOKENS"`
}

// UseDatabase reports whether a PostgreSQL URL is configured. Without one the
// service keeps contracts in memory.
func (c *AppConfig) UseDatabase() bool {
	return c.Database.URL != ""
}
