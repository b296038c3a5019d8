// Package http provides the request templates and the default HTTP client
// that workers send rendered requests through.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Doer sends one rendered request and returns the fully read response.
//
// Implementations must be safe for concurrent use by independent workers.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// SessionFactory is implemented by clients that can hand out an isolated
// session, e.g. one with its own cookie jar, for each worker.
type SessionFactory interface {
	NewSession() (Doer, error)
}

// Client is the default Doer, backed by a retryable HTTP client.
//
// Retries are off unless WithRetryMax is used: a load test normally wants
// every failure to show up in the report.
type Client struct {
	retry   *retryablehttp.Client
	headers map[string]string
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new HTTP client with the given options
func NewClient(options ...ClientOption) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second
	// Hand back the last response as-is so 5xx statuses are recorded, not turned into errors.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := &Client{
		retry:   rc,
		headers: make(map[string]string),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithTimeout sets the per-attempt timeout for the client
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.retry.HTTPClient.Timeout = timeout
	}
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithRetryMax sets how many times a failed attempt is retried
func WithRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.retry.RetryMax = n
	}
}

// WithRetryWait sets the backoff bounds between retries
func WithRetryWait(min, max time.Duration) ClientOption {
	return func(c *Client) {
		c.retry.RetryWaitMin = min
		c.retry.RetryWaitMax = max
	}
}

// WithLogger routes retry diagnostics to a zap logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.retry.Logger = leveledLogger{logger.Sugar()}
		}
	}
}

// Do sends the request and reads the whole response body.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	start := time.Now()
	httpResp, err := c.retry.Do(httpReq)
	if err != nil {
		if httpResp != nil && httpResp.Body != nil {
			httpResp.Body.Close()
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode:   httpResp.StatusCode,
		Status:       httpResp.Status,
		Headers:      httpResp.Header,
		Body:         body,
		ResponseTime: time.Since(start),
	}, nil
}

// NewSession returns a client sharing this client's transport and retry
// policy but holding its own cookie jar.
func (c *Client) NewSession() (Doer, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	rc := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport: c.retry.HTTPClient.Transport,
			Timeout:   c.retry.HTTPClient.Timeout,
			Jar:       jar,
		},
		Logger:       c.retry.Logger,
		RetryWaitMin: c.retry.RetryWaitMin,
		RetryWaitMax: c.retry.RetryWaitMax,
		RetryMax:     c.retry.RetryMax,
		CheckRetry:   c.retry.CheckRetry,
		Backoff:      c.retry.Backoff,
		ErrorHandler: c.retry.ErrorHandler,
	}

	return &Client{retry: rc, headers: c.headers}, nil
}

// CloseIdleConnections closes idle keep-alive connections of the transport.
func (c *Client) CloseIdleConnections() {
	c.retry.HTTPClient.CloseIdleConnections()
}

// leveledLogger adapts a zap SugaredLogger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

var (
	_ Doer           = (*Client)(nil)
	_ SessionFactory = (*Client)(nil)
)
