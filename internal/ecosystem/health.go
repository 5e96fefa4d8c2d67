package ecosystem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ecogateway/internal/telemetry"
	"ecogateway/pkg/errors"
)

// Status represents the health of a service or of the whole ecosystem
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
	StatusUnknown  Status = "unknown"
)

// ServiceHealth is the result of probing one service
type ServiceHealth struct {
	Status  Status        `json:"status"`
	Code    int           `json:"code,omitempty"`
	Error   string        `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// AggregateHealth folds the probes of every configured service
type AggregateHealth struct {
	Overall   Status                   `json:"overall"`
	Services  map[string]ServiceHealth `json:"services"`
	Timestamp time.Time                `json:"timestamp"`
}

// timeoutReason is reported when a probe exceeds its deadline
const timeoutReason = "timeout"

// CheckService probes a single service once. Keys that are not registered or
// have no health endpoint report StatusUnknown without any network call.
func (c *Client) CheckService(ctx context.Context, key string) ServiceHealth {
	svc, ok := c.registry.Lookup(key)
	if !ok {
		return ServiceHealth{Status: StatusUnknown, Message: "service not configured"}
	}
	target, ok := svc.HealthURL()
	if !ok {
		return ServiceHealth{Status: StatusUnknown, Message: "service not configured"}
	}

	start := time.Now()
	health := c.probe(ctx, target)
	health.Latency = time.Since(start)

	c.metrics.ObserveHealthCheck(key, string(health.Status), health.Latency)
	if health.Status != StatusHealthy {
		c.logger.Debug("Service health check failed",
			"service", key,
			"status", health.Status,
			"code", health.Code,
			"error", health.Error,
		)
	}

	return health
}

// probe issues the single GET of a health check
func (c *Client) probe(ctx context.Context, target string) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ServiceHealth{Status: StatusDown, Error: err.Error()}
	}
	req.Header = c.requestHeaders(nil)

	spanCtx, span := telemetry.StartClientSpan(ctx, c.tracer, "ecosystem.health_probe", req)
	req = req.WithContext(spanCtx)

	resp, err := c.http.Do(req)
	if err != nil {
		err = classifyTransportError(ctx, err, c.config.HealthTimeout)
		telemetry.EndClientSpan(span, 0, err)
		if errors.TypeOf(err) == errors.ErrorTypeTimeout {
			return ServiceHealth{Status: StatusDown, Error: timeoutReason}
		}
		return ServiceHealth{Status: StatusDown, Error: errors.Message(err)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	telemetry.EndClientSpan(span, resp.StatusCode, nil)

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return ServiceHealth{Status: StatusHealthy, Code: resp.StatusCode}
	}
	return ServiceHealth{Status: StatusDegraded, Code: resp.StatusCode}
}

// CheckHealth probes every configured service concurrently and waits for all
// of them. A probe that panics is recorded as down; the call never fails.
func (c *Client) CheckHealth(ctx context.Context) AggregateHealth {
	ctx, cancel := c.aggregateContext(ctx)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "ecosystem.check_health")
	defer span.End()

	keys := c.config.HealthServices
	results := make([]ServiceHealth, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Service health check panicked",
						"service", key,
						"panic", r,
					)
					results[i] = ServiceHealth{Status: StatusDown, Error: fmt.Sprintf("check failed: %v", r)}
				}
			}()
			results[i] = c.checkFn(ctx, key)
		}(i, key)
	}
	wg.Wait()

	services := make(map[string]ServiceHealth, len(keys))
	for i, key := range keys {
		services[key] = results[i]
	}

	overall := OverallStatus(results)
	c.metrics.SetAggregateStatus(string(overall))
	if overall != StatusHealthy {
		c.logger.Info("Ecosystem not fully healthy", "overall", overall)
	}

	return AggregateHealth{
		Overall:   overall,
		Services:  services,
		Timestamp: time.Now().UTC(),
	}
}

// OverallStatus is healthy when every result is healthy, down when none is,
// and degraded otherwise.
func OverallStatus(results []ServiceHealth) Status {
	healthy := 0
	for _, r := range results {
		if r.Status == StatusHealthy {
			healthy++
		}
	}

	switch {
	case healthy == len(results):
		return StatusHealthy
	case healthy == 0:
		return StatusDown
	default:
		return StatusDegraded
	}
}
