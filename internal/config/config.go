package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/Brownie44l1/house-price-api/internal/dataset"
)

// Config centralises service configuration.
type Config struct {
	HTTPPort       string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`

	ModelPath         string        `env:"MODEL_PATH" envDefault:"models/model_embedded.onnx"`
	ModelMetadataPath string        `env:"MODEL_METADATA_PATH" envDefault:"models/model_metadata.json"`
	ModelURL          string        `env:"MODEL_URL"`
	ONNXRuntimeLib    string        `env:"ONNXRUNTIME_LIB"`
	ModelLoadTimeout  time.Duration `env:"MODEL_LOAD_TIMEOUT" envDefault:"2m"`

	DatasetSource string `env:"DATASET_SOURCE" envDefault:"csv"`
	DatasetPath   string `env:"DATASET_PATH" envDefault:"data/socal2.csv"`
	DatabaseURL   string `env:"DATABASE_URL"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"1h"`

	EstimatorConfig string `env:"ESTIMATOR_CONFIG"`
	MaxUploadBytes  int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxImagePixels  int64  `env:"MAX_IMAGE_PIXELS" envDefault:"40000000"`
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.DatasetSource {
	case dataset.KindCSV, dataset.KindSQLite:
		if c.DatasetPath == "" {
			return fmt.Errorf("DATASET_PATH is required for %s datasets", c.DatasetSource)
		}
	case dataset.KindPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres datasets")
		}
	default:
		return fmt.Errorf("unknown DATASET_SOURCE %q", c.DatasetSource)
	}
	if c.MaxUploadBytes <= 0 || c.MaxImagePixels <= 0 {
		return errors.New("MAX_UPLOAD_BYTES and MAX_IMAGE_PIXELS must be positive")
	}
	return nil
}
