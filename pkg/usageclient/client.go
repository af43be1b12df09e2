package usageclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	usagePath          = "/v1/usage"
	defaultHTTPTimeout = 10 * time.Second
	maxBodyBytes       = 1 << 20

	// DegradedHeader is set by the API when an answer was given without the counter store.
	DegradedHeader = "X-Metering-Degraded"
)

// Fetcher loads the current snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// TokenFunc returns the bearer token for the current session.
type TokenFunc func(ctx context.Context) (string, error)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token source.
func WithToken(fn TokenFunc) ClientOption {
	return func(c *Client) { c.token = fn }
}

// Client talks to the usage API: snapshots, checks and records.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenFunc
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch loads and validates the caller's snapshot.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if _, err := c.do(ctx, http.MethodGet, usagePath, &snap); err != nil {
		if errors.Is(err, errMalformed) {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		return Snapshot{}, err
	}
	if err := Validate(snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Check asks whether one use of category may start. A denial is returned as
// *UpgradeRequiredError; errors.Is matches it against ErrQuotaExceeded or ErrFeatureNotIncluded.
func (c *Client) Check(ctx context.Context, category string) (Decision, error) {
	var d Decision
	h, err := c.do(ctx, http.MethodPost, categoryPath(category, "check"), &d)
	if err != nil {
		return Decision{}, err
	}
	if h.Get(DegradedHeader) != "" {
		d.Degraded = true
	}
	return d, nil
}

// Record counts one completed use of category.
func (c *Client) Record(ctx context.Context, category string) (RecordResult, error) {
	var res RecordResult
	h, err := c.do(ctx, http.MethodPost, categoryPath(category, "record"), &res)
	if err != nil {
		return RecordResult{}, err
	}
	res.Degraded = h.Get(DegradedHeader) != ""
	return res, nil
}

func categoryPath(category, action string) string {
	return usagePath + "/" + url.PathEscape(category) + "/" + action
}

// do sends an authenticated request and decodes a 200 body into out.
func (c *Client) do(ctx context.Context, method, path string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("usageclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("usageclient: token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usageclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode != http.StatusOK {
		return resp.Header, decodeError(resp.StatusCode, body)
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return resp.Header, nil
}

func decodeError(status int, body io.Reader) error {
	var eb struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Category string `json:"category"`
		Used     int64  `json:"used"`
		Limit    int    `json:"limit"`
	}
	decoded := json.NewDecoder(body).Decode(&eb) == nil

	if status == http.StatusPaymentRequired && decoded {
		return &UpgradeRequiredError{
			Code:     eb.Code,
			Message:  eb.Message,
			Category: eb.Category,
			Used:     eb.Used,
			Limit:    eb.Limit,
		}
	}
	apiErr := &APIError{Status: status}
	if decoded {
		apiErr.Code, apiErr.Message = eb.Code, eb.Message
	}
	return apiErr
}

// Validate rejects snapshots that do not follow SchemaV1.
func Validate(s Snapshot) error {
	if s.Schema != SchemaV1 {
		return fmt.Errorf("%w: schema %q", ErrInvalidSnapshot, s.Schema)
	}
	if s.Tier == "" {
		return fmt.Errorf("%w: missing tier", ErrInvalidSnapshot)
	}
	if s.PeriodStart.IsZero() || !s.PeriodEnd.After(s.PeriodStart) {
		return fmt.Errorf("%w: bad period %s..%s", ErrInvalidSnapshot, s.PeriodStart, s.PeriodEnd)
	}
	seen := make(map[string]struct{}, len(s.Categories))
	for _, e := range s.Categories {
		if e.Category == "" {
			return fmt.Errorf("%w: entry without category", ErrInvalidSnapshot)
		}
		if _, dup := seen[e.Category]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidSnapshot, e.Category)
		}
		seen[e.Category] = struct{}{}
		if e.Used < 0 {
			return fmt.Errorf("%w: %s used is negative", ErrInvalidSnapshot, e.Category)
		}
		if e.Unlimited != (e.Limit == nil) {
			return fmt.Errorf("%w: %s limit must be null exactly when unlimited", ErrInvalidSnapshot, e.Category)
		}
		if e.Limit != nil && *e.Limit < 0 {
			return fmt.Errorf("%w: %s limit is negative", ErrInvalidSnapshot, e.Category)
		}
	}
	return nil
}
