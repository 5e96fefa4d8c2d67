// Package registry holds the static, read-only table of ecosystem services
// and the descriptive chain configuration shown alongside them.
package registry

import (
	"fmt"
	"net/url"
	"strings"

	"ecogateway/pkg/errors"
)

// ServiceDescriptor describes one upstream HTTP service
type ServiceDescriptor struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	HealthPath    string `json:"healthEndpoint,omitempty"`
	MetricsPath   string `json:"metricsEndpoint,omitempty"`
	InfoPath      string `json:"infoEndpoint,omitempty"`
	DocsPath      string `json:"apiDocs,omitempty"`
	DashboardPath string `json:"dashboard,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Endpoint joins the base URL with path
func (d ServiceDescriptor) Endpoint(path string) string {
	return strings.TrimRight(d.URL, "/") + path
}

// HealthURL returns the health check URL, or false when none is configured
func (d ServiceDescriptor) HealthURL() (string, bool) {
	if d.HealthPath == "" {
		return "", false
	}
	return d.Endpoint(d.HealthPath), true
}

// MetricsURL returns the metrics URL, or false when none is configured
func (d ServiceDescriptor) MetricsURL() (string, bool) {
	if d.MetricsPath == "" {
		return "", false
	}
	return d.Endpoint(d.MetricsPath), true
}

// ChainConfig is the descriptive configuration of the chain the ecosystem
// contracts live on. Nothing here is contacted over the network.
type ChainConfig struct {
	Name             string       `json:"name"`
	Network          string       `json:"network"`
	ChainID          string       `json:"chainId"`
	ChainIDHex       string       `json:"chainIdHex"`
	RPCURL           string       `json:"rpcUrl"`
	BlockExplorer    string       `json:"blockExplorer,omitempty"`
	CurrencySymbol   string       `json:"currencySymbol"`
	CurrencyDecimals int          `json:"currencyDecimals"`
	Description      string       `json:"description,omitempty"`
	Router           RouterConfig `json:"router"`
}

// RouterConfig describes the DEX router contract
type RouterConfig struct {
	Address  string `json:"address"`
	Type     string `json:"type"`
	Verified bool   `json:"verified"`
	Note     string `json:"note,omitempty"`
}

// Registry is an ordered, read-only set of service descriptors
type Registry struct {
	services map[string]ServiceDescriptor
	order    []string
	chain    *ChainConfig
}

// New builds a registry. Keys must be unique and non-empty and every base URL
// must be an absolute http(s) URL.
func New(services []ServiceDescriptor, chain *ChainConfig) (*Registry, error) {
	r := &Registry{
		services: make(map[string]ServiceDescriptor, len(services)),
		order:    make([]string, 0, len(services)),
	}

	for i, svc := range services {
		if svc.Key == "" {
			return nil, errors.NewError(errors.ErrorTypeConfig, fmt.Sprintf("service %d: key is required", i))
		}
		if _, dup := r.services[svc.Key]; dup {
			return nil, errors.NewError(errors.ErrorTypeConfig, "duplicate service key").WithDetail("key", svc.Key)
		}
		u, err := url.Parse(svc.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errors.NewError(errors.ErrorTypeConfig, fmt.Sprintf("service %s: invalid url %q", svc.Key, svc.URL)).WithCause(err)
		}
		r.services[svc.Key] = svc
		r.order = append(r.order, svc.Key)
	}

	if chain != nil {
		c := *chain
		r.chain = &c
	}

	return r, nil
}

// Lookup returns the descriptor for key
func (r *Registry) Lookup(key string) (ServiceDescriptor, bool) {
	svc, ok := r.services[key]
	return svc, ok
}

// GetService returns the descriptor for key or a not-found error
func (r *Registry) GetService(key string) (ServiceDescriptor, error) {
	svc, ok := r.services[key]
	if !ok {
		return ServiceDescriptor{}, errors.NewError(errors.ErrorTypeNotFound, "service not found: "+key)
	}
	return svc, nil
}

// Keys returns the service keys in configuration order
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Services returns a copy of all descriptors in configuration order
func (r *Registry) Services() []ServiceDescriptor {
	out := make([]ServiceDescriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.services[key])
	}
	return out
}

// Chain returns the chain configuration if one was provided
func (r *Registry) Chain() (ChainConfig, bool) {
	if r.chain == nil {
		return ChainConfig{}, false
	}
	return *r.chain, true
}

// Len returns the number of services
func (r *Registry) Len() int {
	return len(r.order)
}
