package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ecogateway/pkg/errors"
)

// Loader loads configuration from a file, or from the embedded default when
// no path is given
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration from path with environment overrides
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}

	// Override with environment variables if enabled
	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeConfig, "failed to load env vars").WithCause(err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	if l.path == "" {
		return LoadDefault()
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "failed to read config file").WithCause(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "failed to parse config").WithCause(err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the gateway cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.StreamInterval < 0 {
		return fmt.Errorf("stream interval must not be negative")
	}

	if c.Client.Retries < 0 || c.Client.MetricsRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	if c.Client.Timeout < 0 || c.Client.HealthTimeout < 0 || c.Client.RetryDelay < 0 {
		return fmt.Errorf("client timeouts must not be negative")
	}

	if len(c.Ecosystem.Services) == 0 {
		return fmt.Errorf("at least one ecosystem service is required")
	}
	if _, err := c.Registry(); err != nil {
		return err
	}

	if c.Telemetry.Enabled && c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}
