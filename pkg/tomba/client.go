// Package tomba provides a client for the Tomba.io domain search API.
package tomba

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Tomba.io operations.
type Client interface {
	// DomainSearch returns the email addresses Tomba has found for a domain.
	DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error)
}

// DomainSearchResponse is the parsed domain search response.
type DomainSearchResponse struct {
	Data DomainSearchData `json:"data"`
}

// DomainSearchData holds the domain-level result.
type DomainSearchData struct {
	Organization Organization `json:"organization"`
	Emails       []Email      `json:"emails"`
}

// Organization identifies the company behind the domain.
type Organization struct {
	WebsiteURL string `json:"website_url"`
	Name       string `json:"organization"`
}

// Email is a single address found for the domain. Score is 0-100, the same
// range as Hunter's confidence.
type Email struct {
	Email     string `json:"email"`
	Type      string `json:"type"` // "generic" or "personal"
	Score     int    `json:"score"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
}

// Option configures the Tomba client.
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
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new Tomba.io client.
func NewClient(apiKey, apiSecret string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   "https://api.tomba.io/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
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
			return nil, 0, eris.Wrap(err, "tomba: rate limit wait")
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
			return nil, resp.StatusCode, eris.Wrap(readErr, "tomba: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("tomba: status %d: %s", resp.StatusCode, string(body))
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

func (c *httpClient) DomainSearch(ctx context.Context, domain string) (*DomainSearchResponse, error) {
	params := url.Values{}
	params.Set("domain", domain)
	reqURL := c.baseURL + "/domain-search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "tomba: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tomba-Key", c.apiKey)
	req.Header.Set("X-Tomba-Secret", c.apiSecret)

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "tomba: domain search failed")
	}

	// Tomba returns 404 for domains with no indexed addresses.
	if statusCode == http.StatusNotFound {
		return &DomainSearchResponse{}, nil
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("tomba: unexpected status %d: %s", statusCode, string(body))
	}

	var result DomainSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "tomba: unmarshal response")
	}

	return &result, nil
}
