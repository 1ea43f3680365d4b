package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/erc20-detector/internal/core/classifier"
	"github.com/vietddude/erc20-detector/internal/infra/broker"
)

// EnvPrefix is the prefix of environment overrides, e.g. DETECTOR_BROKER_URL.
const EnvPrefix = "DETECTOR"

// Load reads configuration from a YAML file, applies DETECTOR_* environment
// overrides and fills in defaults. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	// Broker settings where zero is meaningful start from their defaults and are
	// only replaced by explicit values.
	cfg := AppConfig{Broker: broker.DefaultConfig()}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.QueueName == "" {
		cfg.QueueName = "contracts_queue"
	}
	if cfg.RowsPerBatch == 0 {
		cfg.RowsPerBatch = 1000
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ErrorBackoffInterval == 0 {
		cfg.ErrorBackoffInterval = 10 * time.Second
	}

	if cfg.Broker.BaseDelay == 0 {
		cfg.Broker.BaseDelay = broker.DefaultConfig().BaseDelay
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.BacklogInterval == 0 {
		cfg.Server.BacklogInterval = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if len(cfg.Classifier.AllowedTokens) == 0 {
		cfg.Classifier.AllowedTokens = append([]string(nil), classifier.DefaultAllowedTokens...)
	}
}

// Validate checks values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.RowsPerBatch < 0 {
		errs = append(errs, fmt.Errorf("rows_per_batch must be positive, got %d", c.RowsPerBatch))
	}
	if c.PollInterval < 0 || c.ErrorBackoffInterval < 0 || c.InFlightTimeout < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
