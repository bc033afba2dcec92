package wcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nwp-tools/gribfetch/internal/logging"
)

// Default transport behavior: short per-attempt timeout, fixed backoff, and
// no attempt ceiling. The service is assumed reliable but occasionally slow;
// timeouts are retried while every other failure aborts immediately.
const (
	DefaultTimeout = 5 * time.Second
	DefaultBackoff = 2 * time.Second
)

// RetryPolicy bounds the timeout-retry loop of a Client. The zero
// MaxAttempts preserves the historical retry-forever behavior; set it to
// avoid unbounded hangs.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per request.
	// 0 means retry timed-out attempts forever.
	MaxAttempts int

	// Backoff is the fixed wait between timed-out attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy retries timeouts forever with a fixed backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 0, Backoff: DefaultBackoff}

// StatusError reports a non-2xx HTTP response. It is never retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s", e.StatusCode, e.URL)
}

// apikeyTransport injects the service API key into every request when a key
// is set.
type apikeyTransport struct {
	base http.RoundTripper
	key  string
}

func (t *apikeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key != "" {
		req = req.Clone(req.Context())
		req.Header.Set("apikey", t.key)
	}
	return t.base.RoundTrip(req)
}

// Client is the retrying request executor shared by the catalog client, the
// window resolver and the run fetcher. One request is in flight at a time.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *logging.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the server root, without a trailing slash.
	BaseURL string

	// Version is the WCS protocol version sent with every request.
	Version string

	// APIKey is attached as an "apikey" header when non-empty.
	APIKey string

	// Timeout is the per-attempt deadline (0 = DefaultTimeout).
	Timeout time.Duration

	// Retry bounds the timeout-retry loop (zero value = DefaultRetryPolicy).
	Retry RetryPolicy

	// Logger receives optional diagnostic output.
	Logger *logging.Logger
}

// NewClient creates a Client for the given service.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy
	}

	var transport http.RoundTripper = http.DefaultTransport
	if opts.APIKey != "" {
		transport = &apikeyTransport{base: http.DefaultTransport, key: opts.APIKey}
	}

	return &Client{
		baseURL:    opts.BaseURL,
		version:    opts.Version,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		retry:      retry,
		logger:     opts.Logger,
	}
}

// Fetch issues a GET against the given endpoint path and returns the
// response body. The service and version query parameters are always set;
// callers add endpoint-specific ones.
//
// A timed-out attempt is retried after the policy's backoff, up to
// MaxAttempts (forever when 0). Any other transport failure or a non-2xx
// status aborts immediately.
func (c *Client) Fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	params := url.Values{}
	for k, vs := range query {
		params[k] = vs
	}
	params.Set("service", "WCS")
	params.Set("version", c.version)

	reqURL := c.baseURL + path + "?" + params.Encode()

	for attempt := 1; ; attempt++ {
		body, err := c.attempt(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !isTimeout(err) {
			return nil, err
		}

		c.logger.Logf("", "timeout fetching %s (attempt %d)", reqURL, attempt)

		if c.retry.MaxAttempts > 0 && attempt >= c.retry.MaxAttempts {
			return nil, fmt.Errorf("request to %s timed out after %d attempt(s): %w", reqURL, attempt, err)
		}

		select {
		case <-time.After(c.retry.Backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) attempt(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: reqURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", reqURL, err)
	}
	return body, nil
}

// isTimeout reports whether err stems from an attempt that exceeded its
// deadline, as opposed to a hard transport failure.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
