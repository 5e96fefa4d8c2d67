// Package ecosystem implements the gateway client that talks to the
// ecosystem services: a retrying JSON fetch, per-service health probes and
// the concurrent health and metrics aggregations built on top of them.
package ecosystem

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ecogateway/internal/registry"
	"ecogateway/pkg/errors"
	"ecogateway/pkg/metrics"
)

// Well-known service keys
const (
	ServiceGenesis   = "genesis"
	ServiceResonance = "resonance"
	ServiceDex       = "dex"
)

// Config holds the gateway client settings. A Client copies it at
// construction and never mutates it afterwards.
type Config struct {
	// Timeout bounds each fetch attempt
	Timeout time.Duration `yaml:"timeout"`
	// HealthTimeout bounds the single health probe attempt
	HealthTimeout time.Duration `yaml:"healthTimeout"`
	// Retries is the default total number of fetch attempts
	Retries int `yaml:"retries"`
	// RetryDelay is the base of the exponential backoff
	RetryDelay time.Duration `yaml:"retryDelay"`
	// MaxRetryDelay caps the backoff
	MaxRetryDelay time.Duration `yaml:"maxRetryDelay"`
	// MetricsRetries is the attempt budget for service metrics fetches
	MetricsRetries int `yaml:"metricsRetries"`
	// AggregateTimeout bounds a whole aggregation call; 0 disables it
	AggregateTimeout time.Duration `yaml:"aggregateTimeout"`
	// MaxBodyBytes limits how much of a response body is read
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
	// Headers are sent with every request and win over caller headers
	Headers map[string]string `yaml:"headers"`
	// HealthServices is the fixed set of keys probed by CheckHealth
	HealthServices []string `yaml:"healthServices"`
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:        10 * time.Second,
		HealthTimeout:  5 * time.Second,
		Retries:        3,
		RetryDelay:     time.Second,
		MaxRetryDelay:  5 * time.Second,
		MetricsRetries: 2,
		MaxBodyBytes:   4 << 20,
		Headers: map[string]string{
			"X-Quantum-Forge-Client": "web-v1",
			"Content-Type":           "application/json",
		},
		HealthServices: []string{ServiceGenesis, ServiceResonance, ServiceDex},
	}
}

// withDefaults fills zero values from DefaultConfig and copies reference
// fields so later changes to the caller's config are not observed.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = d.HealthTimeout
	}
	if c.Retries <= 0 {
		c.Retries = d.Retries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = d.MaxRetryDelay
	}
	if c.MetricsRetries <= 0 {
		c.MetricsRetries = d.MetricsRetries
	}
	if c.AggregateTimeout < 0 {
		c.AggregateTimeout = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}

	headers := c.Headers
	if headers == nil {
		headers = d.Headers
	}
	c.Headers = make(map[string]string, len(headers))
	for k, v := range headers {
		c.Headers[k] = v
	}

	keys := c.HealthServices
	if keys == nil {
		keys = d.HealthServices
	}
	seen := make(map[string]bool, len(keys))
	c.HealthServices = make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			c.HealthServices = append(c.HealthServices, k)
		}
	}

	return c
}

// Client is the ecosystem gateway client. It is safe for concurrent use.
type Client struct {
	config   Config
	registry *registry.Registry
	http     *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// checkFn probes one service; CheckHealth fans out over it
	checkFn func(ctx context.Context, key string) ServiceHealth
}

// New creates a client over reg with the given configuration
func New(cfg Config, reg *registry.Registry, logger *slog.Logger) (*Client, error) {
	if reg == nil {
		return nil, errors.NewError(errors.ErrorTypeConfig, "service registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config:   cfg.withDefaults(),
		registry: reg,
		http: &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		logger: logger.With("component", "ecosystem"),
		tracer: otel.GetTracerProvider().Tracer("ecogateway"),
	}
	c.checkFn = c.CheckService

	return c, nil
}

// WithHTTPClient replaces the HTTP client used for upstream calls. Per-attempt
// deadlines are applied through the request context, so the client should
// not need its own Timeout.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.http = client
	return c
}

// WithMetrics enables Prometheus instrumentation
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// WithTracer sets the tracer used for upstream spans
func (c *Client) WithTracer(tracer trace.Tracer) *Client {
	if tracer != nil {
		c.tracer = tracer
	}
	return c
}

// Registry returns the read-only service registry
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Config returns a copy of the client configuration
func (c *Client) Config() Config {
	return c.config.withDefaults()
}

// aggregateContext applies the optional aggregate deadline
func (c *Client) aggregateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.AggregateTimeout > 0 {
		return context.WithTimeout(ctx, c.config.AggregateTimeout)
	}
	return context.WithCancel(ctx)
}
