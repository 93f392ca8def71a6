package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troikatech/engage-api/pkg/circuitbreaker"
	"github.com/troikatech/engage-api/pkg/retry"
)

func fastClient() *HTTPClient {
	return NewHTTPClient("test", time.Second).WithRetry(retry.Config{
		MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1,
	})
}

func TestDoJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := fastClient().DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"Authorization": "Bearer t"}, map[string]string{"msg": "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoJSON_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	err := fastClient().DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "nope")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDoJSON_TooManyRequestsIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := fastClient().DoJSON(context.Background(), http.MethodPost, srv.URL, nil, map[string]string{"to": "x"}, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoJSON_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := fastClient()
	for i := 0; i < 10; i++ {
		_ = c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.GetState())
}

func TestUpstreamFault(t *testing.T) {
	assert.True(t, upstreamFault(&APIError{StatusCode: http.StatusBadGateway}))
	assert.True(t, upstreamFault(&APIError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, upstreamFault(&APIError{StatusCode: http.StatusNotFound}))
	assert.False(t, upstreamFault(context.Canceled))
	assert.True(t, upstreamFault(errors.New("connection refused")))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Zero(t, retryAfter(""))
	assert.Zero(t, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
