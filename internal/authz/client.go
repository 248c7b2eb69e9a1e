// Package authz is a client for the remote waitlist service that decides
// whether a client id may use the wallet engine.
package authz

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/transport"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

const (
	// DefaultBaseURL is the public waitlist service.
	DefaultBaseURL = "https://waitlist.mutiny-waitlist.workers.dev"

	// RequestIDHeader carries a per-request id for correlating server logs.
	RequestIDHeader = "X-Request-ID"

	httpTimeout     = 30 * time.Second
	maxResponseBody = 64 << 10
)

// ErrEmptyID is returned when a lookup is attempted without an id.
var ErrEmptyID = &fwerr.WalletError{
	Code:     "AUTH_ID_REQUIRED",
	Message:  "authorization id is required",
	ExitCode: fwerr.ExitInput,
}

var errNotAnObject = errors.New("response body is not a JSON object")

// Record is the waitlist entry for one client id.
type Record struct {
	ID           string `json:"id,omitempty"`
	ApprovalDate string `json:"approval_date,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// UnmarshalJSON accepts both snake_case and camelCase field names.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              string `json:"id"`
		ApprovalDate    string `json:"approval_date"`
		ApprovalDateAlt string `json:"approvalDate"`
		CreatedAt       string `json:"created_at"`
		CreatedAtAlt    string `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.ApprovalDate = firstNonEmpty(raw.ApprovalDate, raw.ApprovalDateAlt)
	r.CreatedAt = firstNonEmpty(raw.CreatedAt, raw.CreatedAtAlt)
	return nil
}

// Approved reports whether the record carries an approval date.
func (r *Record) Approved() bool {
	return r != nil && strings.TrimSpace(r.ApprovalDate) != ""
}

// Client looks up waitlist records.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *transport.RateLimiter
	retry       transport.RetryConfig
	metrics     *metrics.Metrics
	newID       func() string
}

// ClientOptions configures the client. Zero values select defaults.
type ClientOptions struct {
	BaseURL       string
	HTTPClient    *http.Client
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Retry         *transport.RetryConfig
	Metrics       *metrics.Metrics
}

// NewClient creates a waitlist client.
func NewClient(opts *ClientOptions) *Client {
	if opts == nil {
		opts = &ClientOptions{}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = httpTimeout
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		rateLimiter: transport.NewRateLimiter(opts.RatePerSecond, opts.Burst),
		retry:       transport.DefaultRetryConfig(),
		metrics:     metrics.Global,
		newID:       uuid.NewString,
	}

	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		c.httpClient = opts.HTTPClient
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if opts.Metrics != nil {
		c.metrics = opts.Metrics
	}
	return c
}

// BaseURL returns the service URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Lookup fetches the waitlist record for id. Non-2xx responses and bodies
// that are not a JSON object are errors.
func (c *Client) Lookup(ctx context.Context, id string) (*Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyID
	}

	rec, err := transport.Retry(ctx, c.retry, func(ctx context.Context) (*Record, error) {
		return c.lookupOnce(ctx, id)
	})
	c.metrics.RecordAuthLookup(err)
	if err != nil {
		return nil, fwerr.Because(fwerr.ErrAuthLookup, err)
	}
	return rec, nil
}

func (c *Client) lookupOnce(ctx context.Context, id string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/waitlist/%s", c.baseURL, url.PathEscape(id))

	if err := c.rateLimiter.WaitURL(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, c.newID())

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL is built from config plus an escaped id
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, transport.WrapRetryable(fmt.Errorf("sending request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transport.StatusError(resp)
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("parsing response: %w", errNotAnObject)
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// NewID returns a fresh client id suitable for registering on the waitlist.
func NewID() string {
	return uuid.NewString()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
