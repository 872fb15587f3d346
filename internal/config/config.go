// Package config provides YAML configuration loading with environment
// variable expansion, defaults, and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend modes.
const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

// Config represents the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	Storage   StorageConfig   `yaml:"storage"`
	Persona   PersonaConfig   `yaml:"persona"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// CORSConfig controls cross-origin access for browser frontends.
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowOrigins     []string      `yaml:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// BedrockConfig defines the model and the ordered region list used for
// inference dispatch. Regions are tried in order starting from the
// process-wide cursor; the list is fixed for the lifetime of the process.
type BedrockConfig struct {
	ModelID        string        `yaml:"model_id"`
	Regions        []string      `yaml:"regions"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig selects and configures the conversation store backend.
type StorageConfig struct {
	Mode      string   `yaml:"mode"` // filesystem, s3
	Directory string   `yaml:"directory"`
	S3        S3Config `yaml:"s3"`
}

// S3Config contains settings for the S3-backed conversation store.
// Static credentials are optional; the default AWS credential chain is
// used when they are absent.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// PersonaConfig sets the assistant persona. Text takes effect as-is;
// File points at a text file watched for changes at runtime.
type PersonaConfig struct {
	Text string `yaml:"text"`
	File string `yaml:"file"`
}

// RateLimitConfig defines per-client rate limiting parameters.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstSize         int  `yaml:"burst_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		CORS: CORSConfig{
			Enabled:          true,
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           5 * time.Minute,
		},
		Bedrock: BedrockConfig{
			ModelID:        "us.amazon.nova-lite-v1:0",
			Regions:        []string{"us-west-2", "us-east-1", "us-east-2"},
			RequestTimeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			Mode:      StorageFilesystem,
			Directory: "conversations",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "parley",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Bedrock.ModelID == "" {
		return fmt.Errorf("bedrock.model_id is required")
	}
	if len(c.Bedrock.Regions) == 0 {
		return fmt.Errorf("bedrock: at least one region must be configured")
	}
	for i, region := range c.Bedrock.Regions {
		if region == "" {
			return fmt.Errorf("bedrock.regions[%d]: region cannot be empty", i)
		}
	}
	if c.Bedrock.RequestTimeout < 0 {
		return fmt.Errorf("bedrock.request_timeout cannot be negative")
	}

	switch c.Storage.Mode {
	case StorageFilesystem:
		if c.Storage.Directory == "" {
			return fmt.Errorf("storage.directory is required for filesystem mode")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 mode")
		}
	default:
		return fmt.Errorf("storage.mode must be %q or %q, got %q",
			StorageFilesystem, StorageS3, c.Storage.Mode)
	}

	if c.Persona.Text != "" && c.Persona.File != "" {
		return fmt.Errorf("persona.text and persona.file are mutually exclusive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate_limit.requests_per_minute must be positive when enabled")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive when enabled")
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0")
	}

	return nil
}
