// Package roster fetches the active member list from the member directory.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"licensewatch/internal/license/models"
	"licensewatch/internal/platform/tracing"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultHealthTimeout = 10 * time.Second

	maxBodyBytes = 8 << 20
)

var (
	ErrNotConfigured    = errors.New("roster token is not configured")
	ErrUnexpectedStatus = errors.New("unexpected roster response status")
	ErrDecode           = errors.New("invalid roster response")
)

type memberRecord struct {
	Name       string `json:"name"`
	RecoNumber string `json:"recoNumber"`
}

type membersResponse struct {
	Members []memberRecord `json:"members"`
}

// Health is the result of probing the member directory.
type Health struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// Client is a bearer-authenticated member directory client.
type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.HTTPClient.Timeout = d
		}
	}
}

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

func New(baseURL, token string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	rc.HTTPClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: tracing.WrapTransport(http.DefaultTransport),
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    rc,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ListActiveMembers returns active members in directory order. Records with
// a name but no license id are kept with an empty id; records with neither
// are dropped.
func (c *Client) ListActiveMembers(ctx context.Context) ([]models.Member, error) {
	query := url.Values{"status": {"active"}, "fields": {"name,recoNumber"}}
	resp, err := c.get(ctx, "/members?"+query.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded membersResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	members := make([]models.Member, 0, len(decoded.Members))
	for _, rec := range decoded.Members {
		name := strings.TrimSpace(rec.Name)
		id := strings.TrimSpace(rec.RecoNumber)
		if name == "" && id == "" {
			c.logger.WarnContext(ctx, "dropping incomplete roster record")
			continue
		}
		members = append(members, models.Member{Name: name, LicenseID: id})
	}
	return members, nil
}

// Health probes GET {base}/health. Failures are reported in the result.
func (c *Client) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()

	resp, err := c.get(ctx, "/health")
	if err != nil {
		return Health{Healthy: false, Message: fmt.Sprintf("roster health check failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Health{Healthy: false, Message: fmt.Sprintf("roster health check failed: status %d", resp.StatusCode)}
	}
	return Health{Healthy: true, Message: "roster API is healthy"}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	if c.token == "" {
		return nil, ErrNotConfigured
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster request: %w", err)
	}
	return resp, nil
}
