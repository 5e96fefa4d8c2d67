package config

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"ecogateway/pkg/errors"
)

//go:embed default.yaml
var defaultConfigYAML string

// LoadDefault loads the default embedded configuration
func LoadDefault() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "failed to parse default config").WithCause(err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
