// Package httpclient provides the outbound JSON client shared by the
// knowledge-source adapters: per-call timeouts, bounded retries with
// backoff, and a consecutive-failure circuit breaker.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// APIError is a non-2xx upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	Timeout            time.Duration
	Retry              int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	MaxConsecutiveFail int
	CircuitOpen        time.Duration
}

// Client performs JSON requests.
type Client struct {
	hc        *http.Client
	opt       Options
	logger    *zap.Logger
	fail      atomic.Int32
	openUntil atomic.Int64 // unix nanos
}

// New creates a Client. A nil logger disables logging.
func New(opt Options, logger *zap.Logger) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	if opt.Retry < 0 {
		opt.Retry = 0
	}
	if opt.BackoffMin <= 0 {
		opt.BackoffMin = 100 * time.Millisecond
	}
	if opt.BackoffMax < opt.BackoffMin {
		opt.BackoffMax = opt.BackoffMin
	}
	if opt.MaxConsecutiveFail <= 0 {
		opt.MaxConsecutiveFail = 5
	}
	if opt.CircuitOpen <= 0 {
		opt.CircuitOpen = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		hc:     &http.Client{},
		opt:    opt,
		logger: logger,
	}
}

// Request describes one JSON call.
type Request struct {
	Method  string
	URL     string
	Header  map[string]string
	Body    any           // marshalled as JSON when non-nil
	Timeout time.Duration // overrides Options.Timeout
	NoRetry bool
}

// Do sends req and returns the body of a 2xx response. Transport errors
// and 5xx responses are retried; 4xx responses are returned at once.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	if c.openUntil.Load() > time.Now().UnixNano() {
		return nil, ErrCircuitOpen
	}

	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		payload = b
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.opt.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := uint(c.opt.Retry + 1)
	if req.NoRetry {
		attempts = 1
	}

	body, err := retry.DoWithData(
		func() ([]byte, error) { return c.once(ctx, req, payload) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.opt.BackoffMin),
		retry.MaxDelay(c.opt.BackoffMax),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(c.opt.BackoffMin),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying request",
				zap.String("url", req.URL),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
			c.recordFailure()
		}
		return nil, err
	}

	c.fail.Store(0)
	return body, nil
}

func (c *Client) once(ctx context.Context, req Request, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, rd)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("creating request: %w", err))
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
		if resp.StatusCode < 500 {
			return nil, retry.Unrecoverable(apiErr)
		}
		return nil, apiErr
	}
	return body, nil
}

func (c *Client) recordFailure() {
	if c.fail.Inc() >= int32(c.opt.MaxConsecutiveFail) {
		c.openUntil.Store(time.Now().Add(c.opt.CircuitOpen).UnixNano())
		c.fail.Store(0)
		c.logger.Warn("circuit opened", zap.Duration("for", c.opt.CircuitOpen))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
