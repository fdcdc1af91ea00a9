package reinfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/reinfer/sync-go/internal/rest"
)

const (
	defaultBaseURL        = "https://reinfer.io/api/voc"
	defaultRequestTimeout = 30 * time.Second
)

// RetryPolicy controls how the client retries POST requests whose response
// status indicates a transient failure.
//
// The policy is explicit configuration passed to [NewClient] via
// [WithRetryPolicy]; there is no mutable global retry state. The final
// status code after retries are exhausted flows into the normal
// status-to-error mapping unchanged.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt; each further
	// attempt doubles it.
	InitialBackoff time.Duration

	// RetryableStatuses are the HTTP status codes that trigger a retry.
	RetryableStatuses []int
}

// DefaultRetryPolicy returns the standard policy: 5 attempts total with
// exponential backoff starting at 100ms, retrying the backend's documented
// transient statuses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		RetryableStatuses: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Client synchronises comments with the platform over HTTPS.
//
// A Client owns an HTTP session with fixed headers (the authentication
// token and content type are attached to every request) and a retry policy
// for transient failures. Create one with [NewClient]; the zero value is
// not usable.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL string
	rest    *rest.Client
	logger  *slog.Logger
}

// clientConfig holds mutable state during [Client] construction.
type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	timeout    time.Duration
	logger     *slog.Logger
}

// ClientOption configures a [Client] during construction.
//
// Built-in options: [WithBaseURL], [WithHTTPClient], [WithRetryPolicy],
// [WithRequestTimeout], [WithLogger].
type ClientOption func(*clientConfig) error

// WithBaseURL overrides the API base URL, e.g. for testing against a local
// mock backend. The default is the hosted platform URL.
//
// Returns an error if the URL is not absolute http(s).
func WithBaseURL(rawURL string) ClientOption {
	return func(cfg *clientConfig) error {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("base URL scheme must be http or https, got %q", parsed.Scheme)
		}
		cfg.baseURL = rawURL
		return nil
	}
}

// WithHTTPClient supplies a custom [http.Client], replacing the default
// pooled transport. Useful for proxies and custom TLS configuration.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(cfg *clientConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithRetryPolicy replaces the default retry policy. See [DefaultRetryPolicy].
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(cfg *clientConfig) error {
		if p.MaxAttempts < 1 {
			return errors.New("retry policy must allow at least one attempt")
		}
		if p.InitialBackoff < 0 {
			return errors.New("retry backoff cannot be negative")
		}
		cfg.retry = p
		return nil
	}
}

// WithRequestTimeout sets the per-attempt request timeout.
// Defaults to 30 seconds. Zero disables the timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(cfg *clientConfig) error {
		if d < 0 {
			return errors.New("request timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// NewClient creates a [Client] that authenticates every request with the
// given token.
//
// Example:
//
//	client, err := reinfer.NewClient(token,
//	    reinfer.WithRetryPolicy(reinfer.DefaultRetryPolicy()),
//	    reinfer.WithLogger(logger),
//	)
func NewClient(authToken string, opts ...ClientOption) (*Client, error) {
	if authToken == "" {
		return nil, errors.New("authentication token cannot be empty")
	}

	cfg := &clientConfig{
		baseURL: defaultBaseURL,
		retry:   DefaultRetryPolicy(),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	headers := map[string]string{
		"X-Auth-Token": authToken,
		"Content-Type": "application/json",
	}
	policy := rest.Policy{
		MaxAttempts:       cfg.retry.MaxAttempts,
		InitialBackoff:    cfg.retry.InitialBackoff,
		RetryableStatuses: cfg.retry.RetryableStatuses,
	}

	return &Client{
		baseURL: cfg.baseURL,
		rest:    rest.NewClient(cfg.httpClient, headers, policy, cfg.timeout),
		logger:  logger,
	}, nil
}

// syncRequest is the body of a sync POST.
type syncRequest struct {
	Comments []wireComment `json:"comments"`
}

// Sync uploads a batch of comments to a dataset.
//
// datasetName refers to a dataset created on the platform, prefixed with
// its owner, e.g. "acme/emails". sourceName labels the origin system of
// the batch, e.g. "Zendesk", and is attached to every comment as the
// reserved "string:Source" property.
//
// The operation is idempotent: if any comment ID in the batch was used
// before, the corresponding comment is overwritten.
//
// Every comment is validated and encoded before anything is sent; a
// reserved property name fails with a KindValidation error and no network
// call is made. Other failures map onto the error taxonomy: KindConnection
// for transport failures, KindNoSuchDataset for HTTP 404, KindRateLimited
// for HTTP 429, KindValidation for HTTP 400, and KindBackend for anything
// else, including unparseable response bodies.
func (c *Client) Sync(ctx context.Context, datasetName, sourceName string, comments []Comment) error {
	wire := make([]wireComment, len(comments))
	for i, comment := range comments {
		encoded, err := encodeComment(sourceName, comment)
		if err != nil {
			return err
		}
		wire[i] = encoded
	}

	resp, err := c.rest.PostJSON(ctx, c.datasetURL(datasetName, "sync"), syncRequest{Comments: wire})
	if err != nil {
		return wrapError(KindConnection, err, "sync request failed: %v", err)
	}

	if err := mapResponse(resp, nil); err != nil {
		return err
	}
	c.logger.Debug("synced comments", "dataset", datasetName, "source", sourceName, "count", len(comments))
	return nil
}

// recentRequest is the body of a most-recent query POST.
type recentRequest struct {
	Limit  int          `json:"limit"`
	Filter recentFilter `json:"filter"`
}

type recentFilter struct {
	UserProperties map[string]propertyFilter `json:"user_properties"`
}

type propertyFilter struct {
	OneOf []string `json:"one_of"`
}

// recentResponse is the body of a most-recent query response.
type recentResponse struct {
	Comments []struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"comments"`
}

// MostRecent returns the ID and timestamp of the most recent comment a
// source has synced into a dataset.
//
// "Most recent" means the comment with the highest timestamp, not the one
// uploaded last. Fails with a KindEmptyDataset error if the dataset holds
// no comments for the source, KindNoSuchDataset if the dataset does not
// exist, and KindBackend on transient backend failures.
func (c *Client) MostRecent(ctx context.Context, datasetName, sourceName string) (string, time.Time, error) {
	payload := recentRequest{
		Limit: 1,
		Filter: recentFilter{
			UserProperties: map[string]propertyFilter{
				"string:Source": {OneOf: []string{sourceName}},
			},
		},
	}

	resp, err := c.rest.PostJSON(ctx, c.datasetURL(datasetName, "recent"), payload)
	if err != nil {
		return "", time.Time{}, wrapError(KindConnection, err, "recent query failed: %v", err)
	}

	var body recentResponse
	if err := mapResponse(resp, &body); err != nil {
		return "", time.Time{}, err
	}
	if len(body.Comments) == 0 {
		return "", time.Time{}, newError(KindEmptyDataset, "dataset %q is empty", datasetName)
	}
	return body.Comments[0].ID, body.Comments[0].Timestamp, nil
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.rest.Close()
}

// datasetURL builds a dataset-scoped endpoint URL. Dataset names contain
// their owner prefix ("acme/emails"), so the path is deliberately not
// escaped.
func (c *Client) datasetURL(datasetName, operation string) string {
	return c.baseURL + "/datasets/" + datasetName + "/" + operation
}

// mapResponse parses the response body and maps the status code onto the
// error taxonomy. On 2xx the body is decoded into out when out is non-nil;
// an unparseable body is a KindBackend error regardless of status.
func mapResponse(resp rest.Response, out any) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			if !json.Valid(resp.Body) {
				return newError(KindBackend, "unparseable response body")
			}
			return nil
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return wrapError(KindBackend, err, "unparseable response body: %v", err)
		}
		return nil
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return wrapError(KindBackend, err, "unparseable response body (status %d): %v", resp.StatusCode, err)
	}
	message := body.Message
	if message == "" {
		message = "(no description available)"
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return newError(KindRateLimited, "%s", message)
	case http.StatusBadRequest:
		return newError(KindValidation, "%s", message)
	case http.StatusNotFound:
		return newError(KindNoSuchDataset, "%s", message)
	default:
		return newError(KindBackend, "%s", message)
	}
}
