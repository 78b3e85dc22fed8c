// Package sendgrid provides a read-only client for the SendGrid suppression
// APIs: bounces, global unsubscribes, and unsubscribe groups. This system
// never sends mail through SendGrid; it only mirrors suppressions locally.
package sendgrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the SendGrid suppression reads.
type Client interface {
	// Bounces returns one page of bounced addresses.
	Bounces(ctx context.Context, offset, limit int) ([]Bounce, error)
	// GlobalUnsubscribes returns one page of globally unsubscribed addresses.
	GlobalUnsubscribes(ctx context.Context, offset, limit int) ([]Unsubscribe, error)
	// Groups returns all unsubscribe groups.
	Groups(ctx context.Context) ([]Group, error)
	// GroupSuppressions returns the addresses suppressed under one group.
	GroupSuppressions(ctx context.Context, groupID int) ([]string, error)
}

// Bounce is a bounced address with the SMTP reason.
type Bounce struct {
	Email   string `json:"email"`
	Reason  string `json:"reason"`
	Status  string `json:"status"`
	Created int64  `json:"created"`
}

// Unsubscribe is a globally unsubscribed address.
type Unsubscribe struct {
	Email   string `json:"email"`
	Created int64  `json:"created"`
}

// Group is an unsubscribe group.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Option configures the SendGrid client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (requests per second).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new SendGrid suppression client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.sendgrid.com/v3",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "sendgrid: rate limit wait")
		}

		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "sendgrid: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("sendgrid: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrapf(err, "sendgrid: create request %s", path)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "sendgrid: get %s", path)
	}

	if statusCode != http.StatusOK {
		return eris.Errorf("sendgrid: %s unexpected status %d: %s", path, statusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "sendgrid: unmarshal %s response", path)
	}
	return nil
}

func pageQuery(offset, limit int) string {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	return "?" + params.Encode()
}

func (c *httpClient) Bounces(ctx context.Context, offset, limit int) ([]Bounce, error) {
	var bounces []Bounce
	if err := c.get(ctx, "/suppression/bounces"+pageQuery(offset, limit), &bounces); err != nil {
		return nil, err
	}
	return bounces, nil
}

func (c *httpClient) GlobalUnsubscribes(ctx context.Context, offset, limit int) ([]Unsubscribe, error) {
	var unsubs []Unsubscribe
	if err := c.get(ctx, "/suppression/unsubscribes"+pageQuery(offset, limit), &unsubs); err != nil {
		return nil, err
	}
	return unsubs, nil
}

func (c *httpClient) Groups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.get(ctx, "/asm/groups", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *httpClient) GroupSuppressions(ctx context.Context, groupID int) ([]string, error) {
	var emails []string
	path := fmt.Sprintf("/asm/groups/%d/suppressions", groupID)
	if err := c.get(ctx, path, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}
