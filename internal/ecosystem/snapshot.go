package ecosystem

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// GenesisMetrics is the guardian dashboard summary of the genesis backend
type GenesisMetrics struct {
	Available        bool   `json:"available"`
	PendingDecisions int64  `json:"pendingDecisions"`
	SafetyScore      string `json:"safetyScore"`
	ActiveGuardians  int64  `json:"activeGuardians"`
}

// ResonanceMetrics is the info summary of the resonance engine
type ResonanceMetrics struct {
	Available bool   `json:"available"`
	Version   string `json:"version"`
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
}

// MetricsSnapshot groups the service metrics gathered in one call
type MetricsSnapshot struct {
	Genesis   GenesisMetrics   `json:"genesis"`
	Resonance ResonanceMetrics `json:"resonance"`
	Timestamp time.Time        `json:"timestamp"`
}

func unavailableGenesis() GenesisMetrics {
	return GenesisMetrics{SafetyScore: "N/A"}
}

func unavailableResonance() ResonanceMetrics {
	return ResonanceMetrics{Version: "Unknown", Status: "unknown", Uptime: "N/A"}
}

// Metrics fetches genesis and resonance metrics concurrently. A service that
// cannot be reached is reported unavailable with default values.
func (c *Client) Metrics(ctx context.Context) MetricsSnapshot {
	ctx, cancel := c.aggregateContext(ctx)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "ecosystem.metrics")
	defer span.End()

	var snap MetricsSnapshot
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap.Genesis = settle(c, ServiceGenesis, unavailableGenesis(), func() GenesisMetrics {
			return c.genesisMetrics(ctx)
		})
	}()
	go func() {
		defer wg.Done()
		snap.Resonance = settle(c, ServiceResonance, unavailableResonance(), func() ResonanceMetrics {
			return c.resonanceMetrics(ctx)
		})
	}()
	wg.Wait()

	c.metrics.SetMetricsAvailable(ServiceGenesis, snap.Genesis.Available)
	c.metrics.SetMetricsAvailable(ServiceResonance, snap.Resonance.Available)

	snap.Timestamp = time.Now().UTC()
	return snap
}

// settle runs fn and substitutes fallback if it panics
func settle[T any](c *Client, service string, fallback T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Service metrics fetch panicked",
				"service", service,
				"panic", r,
			)
			out = fallback
		}
	}()
	return fn()
}

func (c *Client) genesisMetrics(ctx context.Context) GenesisMetrics {
	out := unavailableGenesis()
	data, ok := c.fetchServiceMetrics(ctx, ServiceGenesis)
	if !ok {
		return out
	}

	out.Available = true
	out.PendingDecisions = intField(data, "pending_decisions", 0)
	out.SafetyScore = stringField(data, "safety_score", "N/A")
	out.ActiveGuardians = intField(data, "active_guardians", 0)
	return out
}

func (c *Client) resonanceMetrics(ctx context.Context) ResonanceMetrics {
	out := unavailableResonance()
	data, ok := c.fetchServiceMetrics(ctx, ServiceResonance)
	if !ok {
		return out
	}

	out.Available = true
	out.Version = stringField(data, "version", "Unknown")
	out.Status = stringField(data, "status", "operational")
	out.Uptime = stringField(data, "uptime", "N/A")
	return out
}

// fetchServiceMetrics fetches the metrics document of key. It reports false
// when the service has no metrics endpoint, the fetch fails, or the body is
// JSON null.
func (c *Client) fetchServiceMetrics(ctx context.Context, key string) (map[string]any, bool) {
	svc, ok := c.registry.Lookup(key)
	if !ok {
		return nil, false
	}
	target, ok := svc.MetricsURL()
	if !ok {
		return nil, false
	}

	res := c.Fetch(ctx, target, FetchOptions{Retries: c.config.MetricsRetries})
	if !res.Success {
		c.logger.Debug("Service metrics unavailable", "service", key, "error", res.Error)
		return nil, false
	}

	var doc any
	if err := res.Decode(&doc); err != nil || doc == nil {
		return nil, false
	}
	fields, ok := doc.(map[string]any)
	if !ok {
		// Valid JSON of another shape: reachable, but no known fields.
		return map[string]any{}, true
	}
	return fields, true
}

// intField reads a numeric field. Missing, zero, or non-numeric values
// yield def.
func intField(data map[string]any, key string, def int64) int64 {
	switch v := data[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n != 0 {
			return n
		}
		if f, err := v.Float64(); err == nil && f != 0 {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n != 0 {
			return n
		}
	}
	return def
}

// stringField reads a textual field. Numbers are accepted in their JSON
// form; missing, empty, or zero values yield def.
func stringField(data map[string]any, key string, def string) string {
	switch v := data[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case json.Number:
		if f, err := v.Float64(); err == nil && f != 0 {
			return v.String()
		}
	case bool:
		if v {
			return "true"
		}
	}
	return def
}
