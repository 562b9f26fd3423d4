package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

func fastOptions() Options {
	return Options{
		Timeout:            2 * time.Second,
		Retry:              2,
		BackoffMin:         time.Millisecond,
		BackoffMax:         2 * time.Millisecond,
		MaxConsecutiveFail: 2,
		CircuitOpen:        time.Minute,
	}
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["query"])
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(fastOptions(), zaptest.NewLogger(t))
	body, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Header: map[string]string{"Authorization": "Bearer k"},
		Body:   map[string]string{"query": "hello"},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Inc() < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(fastOptions(), zaptest.NewLogger(t))
	_, err := c.Do(context.Background(), Request{URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad token"}`))
	}))
	defer server.Close()

	c := New(fastOptions(), zaptest.NewLogger(t))
	_, err := c.Do(context.Background(), Request{URL: server.URL})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "bad token")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(fastOptions(), zaptest.NewLogger(t))
	_, err := c.Do(context.Background(), Request{URL: server.URL, NoRetry: true})

	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(fastOptions(), zaptest.NewLogger(t))
	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{URL: server.URL, NoRetry: true})
		require.Error(t, err)
	}

	before := calls.Load()
	_, err := c.Do(context.Background(), Request{URL: server.URL})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "open circuit must not reach the server")
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	c := New(fastOptions(), zaptest.NewLogger(t))
	start := time.Now()
	_, err := c.Do(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}
