package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/circuitbreaker"
	"github.com/troikatech/engage-api/pkg/logger"
	"github.com/troikatech/engage-api/pkg/metrics"
	"github.com/troikatech/engage-api/pkg/retry"
)

const maxErrorBody = 4096

// APIError carries a non-2xx upstream response.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: upstream returned %d: %s", e.Service, e.StatusCode, e.Body)
}

// upstreamFault reports whether err says the provider is unhealthy. Rejected
// requests (4xx other than 429) leave the breaker alone.
func upstreamFault(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// HTTPClient sends JSON to one provider through a retry loop inside a
// circuit breaker.
type HTTPClient struct {
	client      *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	service     string
}

func NewHTTPClient(service string, timeout time.Duration) *HTTPClient {
	cbConfig := circuitbreaker.DefaultConfig()
	cbConfig.IsFailure = upstreamFault
	cbConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.UpdateCircuitBreaker(name, int(to))
		logger.For("client").Warn("circuit breaker state changed",
			zap.String("service", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	rc := retry.DefaultConfig()
	rc.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.For("client").Debug("retrying upstream call",
			zap.String("service", service),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: timeout},
		breaker:     circuitbreaker.New(service, cbConfig),
		retryConfig: rc,
		service:     service,
	}
}

// WithRetry overrides the retry policy.
func (c *HTTPClient) WithRetry(cfg retry.Config) *HTTPClient {
	c.retryConfig = cfg
	return c
}

// DoJSON sends body as JSON and decodes a 2xx response into out (if non-nil).
// 5xx, 429 and transport errors are retried; other 4xx responses fail at once
// with *APIError.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s request: %w", c.service, err)
		}
	}

	start := time.Now()
	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			return c.send(ctx, method, url, headers, payload, out)
		})
	})
	metrics.RecordServiceCall(c.service, err == nil, time.Since(start))
	return err
}

func (c *HTTPClient) send(ctx context.Context, method, url string, headers map[string]string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Service: c.service, StatusCode: resp.StatusCode, Body: string(raw)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return retry.After(apiErr, retryAfter(resp.Header.Get("Retry-After")))
		case resp.StatusCode >= http.StatusInternalServerError:
			return apiErr
		default:
			return retry.Permanent(apiErr)
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return retry.Permanent(fmt.Errorf("decode %s response: %w", c.service, err))
	}
	return nil
}

// retryAfter reads a delta-seconds Retry-After value; HTTP dates are ignored.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
