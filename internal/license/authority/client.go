// Package authority talks to the licensing authority's registrant search.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"licensewatch/internal/license/models"
	"licensewatch/internal/platform/tracing"
	"licensewatch/pkg/platform/circuit"
)

const (
	DefaultBaseURL = "https://api.reco.on.ca/registrantsearch/api/v2/registrants"
	DefaultTimeout = 15 * time.Second

	headerAPIKey = "X-Api-Key"
	maxBodyBytes = 1 << 20
)

var (
	ErrUnexpectedStatus = errors.New("unexpected authority response status")
	ErrDecode           = errors.New("invalid authority response")
	ErrCircuitOpen      = errors.New("authority unavailable: circuit open")
)

// Client looks up registrants by license id.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.HTTPClient.Timeout = d
		}
	}
}

// WithRetryMax sets how many times a 5xx or transport failure is retried.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.http.RetryMax = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
			c.http.Logger = logger
		}
	}
}

// WithBreaker short-circuits lookups while the authority keeps failing, so a
// sweep over a dead authority does not wait out every timeout.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: tracing.WrapTransport(http.DefaultTransport),
	}
	c := &Client{baseURL: baseURL, http: rc, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Lookup returns the first registrant record for licenseID. A 404 or an
// empty record list is reported as NotFound; any other non-2xx answer,
// transport failure or undecodable body is an error.
func (c *Client) Lookup(ctx context.Context, licenseID string) (*models.AuthorityResponse, error) {
	if c.breaker == nil {
		return c.lookup(ctx, licenseID)
	}
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	resp, err := c.lookup(ctx, licenseID)
	if unavailable(err) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "authority circuit opened", "breaker", c.breaker.Name(), "error", err)
		}
	} else if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "authority circuit closed", "breaker", c.breaker.Name())
	}
	return resp, err
}

func (c *Client) lookup(ctx context.Context, licenseID string) (*models.AuthorityResponse, error) {
	endpoint := c.baseURL + "?" + url.Values{"registrationNumber": {licenseID}}.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build authority request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read authority response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return &models.AuthorityResponse{
			NotFound: true,
			Raw:      map[string]any{"status_code": resp.StatusCode},
		}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}

	return parse(body)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %d: %s", ErrUnexpectedStatus, e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrUnexpectedStatus }

// unavailable reports failures that say the authority itself is unhealthy:
// transport errors and 5xx or 429 answers. Bad records and 4xx do not count.
func unavailable(err error) bool {
	if err == nil || errors.Is(err, ErrDecode) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

func parse(body []byte) (*models.AuthorityResponse, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var records []any
	switch v := decoded.(type) {
	case []any:
		records = v
	case map[string]any:
		if items, ok := v["items"].([]any); ok {
			records = items
		}
	}
	if len(records) == 0 {
		return &models.AuthorityResponse{NotFound: true, Raw: map[string]any{"items": []any{}}}, nil
	}

	first, ok := records[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: registrant record is not an object", ErrDecode)
	}
	text, _ := first["statusDescription"].(string)
	return &models.AuthorityResponse{StatusText: text, Raw: first}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
