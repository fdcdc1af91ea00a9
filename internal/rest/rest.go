// Package rest implements the HTTP plumbing for the sync API: a pooled
// transport, JSON POST requests with fixed headers, bounded response body
// reads, and status-code driven retries with exponential backoff.
//
// The package deals only in status codes and raw bodies; mapping responses
// onto the error taxonomy is the caller's concern.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errTransient marks attempts that failed with a retryable status code.
var errTransient = errors.New("transient status")

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Policy controls how POST requests are retried on transient failures.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; each further
	// attempt doubles it.
	InitialBackoff time.Duration

	// RetryableStatuses are the HTTP status codes that trigger a retry.
	// Any other status code ends the request immediately.
	RetryableStatuses []int
}

// Response is the outcome of a POST that produced an HTTP response.
//
// A Response is returned even when the status code indicates an error;
// only transport-level failures surface as Go errors.
type Response struct {
	// StatusCode is the HTTP status code of the final attempt.
	StatusCode int

	// Body is the response body of the final attempt, limited to 1MB.
	Body []byte
}

// Client performs JSON POST requests with fixed headers and a retry policy.
//
// Requests are retried only when the response status code is in the
// policy's retryable set. The request body is replayed byte-identical on
// every attempt. After retries are exhausted, the final response is
// returned as-is so the caller's status mapping sees the real status code.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	policy     Policy
	retryable  map[int]bool
	timeout    time.Duration
}

// NewClient creates a [Client] with the given fixed headers and retry policy.
//
// If httpClient is nil, a client with pooled-transport defaults is used.
// timeout applies per attempt; zero means no per-attempt timeout beyond the
// caller's context.
func NewClient(httpClient *http.Client, headers map[string]string, policy Policy, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			// no default timeout - per-attempt timeouts are applied via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}

	retryable := make(map[int]bool, len(policy.RetryableStatuses))
	for _, code := range policy.RetryableStatuses {
		retryable[code] = true
	}

	return &Client{
		httpClient: httpClient,
		headers:    headers,
		policy:     policy,
		retryable:  retryable,
		timeout:    timeout,
	}
}

// PostJSON marshals payload and POSTs it to url, retrying transient status
// codes per the client's policy.
//
// The returned error is non-nil only for failures that never produced an
// HTTP response (transport errors, context cancellation). A non-2xx final
// status is not an error at this layer.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encoding request body: %w", err)
	}

	attempts := c.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	bo := newBackOff(c.policy.InitialBackoff)

	var resp Response
	operation := func() error {
		r, err := c.post(ctx, url, body)
		if err != nil {
			// transport failure: surface immediately, never retry
			return backoff.Permanent(err)
		}
		resp = r
		if c.retryable[r.StatusCode] {
			return fmt.Errorf("%w %d", errTransient, r.StatusCode)
		}
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil && !errors.Is(err, errTransient) {
		return Response{}, err
	}
	// retries exhausted: hand the final response to the caller's mapping
	return resp, nil
}

// newBackOff builds the retry wait sequence: initial interval doubling per
// attempt, no jitter. MaxElapsedTime is disabled so the wait sequence never
// stops on wall-clock time; the attempt budget is enforced separately via
// backoff.WithMaxRetries.
func newBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return bo
}

// post performs a single POST attempt.
func (c *Client) post(ctx context.Context, url string, body []byte) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		return Response{}, fmt.Errorf("reading response body: %w", err)
	}

	return Response{StatusCode: httpResp.StatusCode, Body: respBody}, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close the client remains usable; new
// connections are established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
