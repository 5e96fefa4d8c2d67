package config

import (
	"net"
	"strconv"
	"time"

	"ecogateway/internal/ecosystem"
	"ecogateway/internal/registry"
	"ecogateway/internal/telemetry"
)

// Config holds gateway configuration
type Config struct {
	Server    Server           `yaml:"server"`
	Client    ecosystem.Config `yaml:"client"`
	Ecosystem Ecosystem        `yaml:"ecosystem"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Server configuration for the HTTP surface
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MetricsPath     string        `yaml:"metricsPath"`
	StreamInterval  time.Duration `yaml:"streamInterval"`
	CORS            CORS          `yaml:"cors"`
}

// CORS configuration
type CORS struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// Ecosystem is the service table and chain record
type Ecosystem struct {
	Services  []Service  `yaml:"services"`
	Contracts *Contracts `yaml:"contracts,omitempty"`
}

// Service configuration
type Service struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Health      string `yaml:"health"`
	Metrics     string `yaml:"metrics"`
	Info        string `yaml:"info"`
	Docs        string `yaml:"docs"`
	Dashboard   string `yaml:"dashboard"`
	Description string `yaml:"description"`
}

// Contracts configuration
type Contracts struct {
	Name             string `yaml:"name"`
	Network          string `yaml:"network"`
	ChainID          string `yaml:"chainId"`
	ChainIDHex       string `yaml:"chainIdHex"`
	RPCURL           string `yaml:"rpcUrl"`
	BlockExplorer    string `yaml:"blockExplorer"`
	CurrencySymbol   string `yaml:"currencySymbol"`
	CurrencyDecimals int    `yaml:"currencyDecimals"`
	Description      string `yaml:"description"`
	Router           Router `yaml:"router"`
}

// Router configuration of the DEX router contract
type Router struct {
	Address  string `yaml:"address"`
	Type     string `yaml:"type"`
	Verified bool   `yaml:"verified"`
	Note     string `yaml:"note"`
}

// Address returns host:port for the HTTP listener
func (s Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ToServiceDescriptor converts to registry.ServiceDescriptor
func (s *Service) ToServiceDescriptor() registry.ServiceDescriptor {
	return registry.ServiceDescriptor{
		Key:           s.Key,
		Name:          s.Name,
		URL:           s.URL,
		HealthPath:    s.Health,
		MetricsPath:   s.Metrics,
		InfoPath:      s.Info,
		DocsPath:      s.Docs,
		DashboardPath: s.Dashboard,
		Description:   s.Description,
	}
}

// ToChainConfig converts to registry.ChainConfig
func (c *Contracts) ToChainConfig() *registry.ChainConfig {
	if c == nil {
		return nil
	}
	return &registry.ChainConfig{
		Name:             c.Name,
		Network:          c.Network,
		ChainID:          c.ChainID,
		ChainIDHex:       c.ChainIDHex,
		RPCURL:           c.RPCURL,
		BlockExplorer:    c.BlockExplorer,
		CurrencySymbol:   c.CurrencySymbol,
		CurrencyDecimals: c.CurrencyDecimals,
		Description:      c.Description,
		Router: registry.RouterConfig{
			Address:  c.Router.Address,
			Type:     c.Router.Type,
			Verified: c.Router.Verified,
			Note:     c.Router.Note,
		},
	}
}

// Registry builds the service registry described by the configuration
func (c *Config) Registry() (*registry.Registry, error) {
	services := make([]registry.ServiceDescriptor, 0, len(c.Ecosystem.Services))
	for i := range c.Ecosystem.Services {
		services = append(services, c.Ecosystem.Services[i].ToServiceDescriptor())
	}
	return registry.New(services, c.Ecosystem.Contracts.ToChainConfig())
}

// applyDefaults fills unset server settings
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Server.StreamInterval == 0 {
		c.Server.StreamInterval = 30 * time.Second
	}
	if c.Telemetry.Service == "" {
		c.Telemetry.Service = "ecogateway"
	}
}
