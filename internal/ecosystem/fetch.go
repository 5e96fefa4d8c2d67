package ecosystem

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"ecogateway/internal/retry"
	"ecogateway/internal/telemetry"
	"ecogateway/pkg/errors"
)

// FetchOptions tunes a single Fetch call. Zero values use the client defaults.
type FetchOptions struct {
	// Retries is the total number of attempts
	Retries int
	// RetryDelay is the backoff base
	RetryDelay time.Duration
	// Headers are merged under the client's fixed headers
	Headers map[string]string
	// Method defaults to GET
	Method string
	// Body is re-sent on every attempt
	Body []byte
}

// FetchResult is the outcome of Fetch: either a success carrying the JSON
// body and status code, or a failure carrying the last error message.
type FetchResult struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data,omitempty"`
	Status  int              `json:"status,omitempty"`
	Error   string           `json:"error,omitempty"`
	Kind    errors.ErrorType `json:"kind,omitempty"`
	Err     error            `json:"-"`
}

// Decode unmarshals the response body into v
func (r FetchResult) Decode(v any) error {
	if !r.Success {
		return errors.NewError(errors.ErrorTypeInvalid, "no data: "+r.Error)
	}
	dec := json.NewDecoder(bytes.NewReader(r.Data))
	dec.UseNumber()
	return dec.Decode(v)
}

func failure(err error) FetchResult {
	return FetchResult{
		Error: errors.Message(err),
		Kind:  errors.TypeOf(err),
		Err:   err,
	}
}

// Fetch performs a JSON request against rawURL with per-attempt timeouts and
// exponential backoff between failed attempts. It never returns an error;
// every failure is reported through the result.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts FetchOptions) FetchResult {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return failure(errors.NewError(errors.ErrorTypeBadRequest, fmt.Sprintf("invalid url %q", rawURL)).WithCause(err))
	}

	attempts := opts.Retries
	if attempts <= 0 {
		attempts = c.config.Retries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = c.config.RetryDelay
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	headers := c.requestHeaders(opts.Headers)

	r := retry.New(retry.Config{
		Attempts:     attempts,
		InitialDelay: delay,
		MaxDelay:     c.config.MaxRetryDelay,
		Multiplier:   2,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.logger.Debug("Retrying ecosystem request",
				"url", rawURL,
				"attempt", attempt+1,
				"delay", wait,
				"error", err,
			)
			c.metrics.IncFetchRetry(u.Host)
		},
	})

	var result FetchResult
	err = r.Do(ctx, func(ctx context.Context, attempt int) error {
		res, err := c.attempt(ctx, method, u, opts.Body, headers)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		c.logger.Warn("Ecosystem request failed",
			"url", rawURL,
			"attempts", attempts,
			"error", err,
		)
		return failure(err)
	}

	return result
}

// attempt issues one request under its own deadline
func (c *Client) attempt(ctx context.Context, method string, u *url.URL, body []byte, headers http.Header) (FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return FetchResult{}, retry.NewNonRetryableError(
			errors.NewError(errors.ErrorTypeBadRequest, "invalid request").WithCause(err))
	}
	req.Header = headers.Clone()

	spanCtx, span := telemetry.StartClientSpan(ctx, c.tracer, "ecosystem.fetch", req)
	req = req.WithContext(spanCtx)

	start := time.Now()
	status, data, err := c.do(req)
	if err != nil {
		err = classifyTransportError(ctx, err, c.config.Timeout)
	} else if status < 200 || status > 299 {
		err = errors.HTTPStatus(status)
	} else if !json.Valid(data) {
		err = errors.NewError(errors.ErrorTypeInvalid, "response body is not valid JSON").WithDetail("status", status)
	}

	outcome := "success"
	if err != nil {
		outcome = string(errors.TypeOf(err))
	}
	c.metrics.ObserveFetchAttempt(u.Host, outcome, time.Since(start))
	telemetry.EndClientSpan(span, status, err)

	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Success: true, Data: json.RawMessage(data), Status: status}, nil
}

// do sends req and reads the bounded body
func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// requestHeaders merges caller headers under the fixed client headers
func (c *Client) requestHeaders(extra map[string]string) http.Header {
	h := make(http.Header, len(extra)+len(c.config.Headers))
	for k, v := range extra {
		h.Set(k, v)
	}
	for k, v := range c.config.Headers {
		h.Set(k, v)
	}
	return h
}

// classifyTransportError maps a transport failure onto the error taxonomy.
// ctx is the attempt context; its expiry means the attempt timed out.
func classifyTransportError(ctx context.Context, err error, timeout time.Duration) error {
	var netErr net.Error
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Timeout(fmt.Sprintf("request timed out after %s", timeout)).WithCause(err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.Network(err)
}
