// Package scrapingdog provides a client for the Scrapingdog Google Maps
// search and web scraping API.
package scrapingdog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Scrapingdog operations.
type Client interface {
	// SearchMaps runs a Google Maps search and returns one page of business
	// results. Pages are zero-based.
	SearchMaps(ctx context.Context, query string, page int) (*MapsResponse, error)
	// Scrape fetches a web page and returns its rendered content.
	Scrape(ctx context.Context, targetURL string) (string, error)
}

// MapsResponse is the parsed Google Maps search response.
type MapsResponse struct {
	Results []MapsResult `json:"search_results"`
}

// MapsResult is a single business from a maps search.
type MapsResult struct {
	Title       string         `json:"title"`
	Address     string         `json:"address"`
	Phone       string         `json:"phone"`
	Website     string         `json:"website"`
	Rating      float64        `json:"rating"`
	Reviews     int            `json:"reviews"`
	Coordinates GPSCoordinates `json:"gps_coordinates"`
}

// GPSCoordinates holds a result's latitude and longitude.
type GPSCoordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Option configures the Scrapingdog client.
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

// NewClient creates a new Scrapingdog client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.scrapingdog.com",
		http: &http.Client{
			Timeout: 60 * time.Second,
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

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503), honoring the rate limiter
// before each attempt.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "scrapingdog: rate limit wait")
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
			return nil, resp.StatusCode, eris.Wrap(readErr, "scrapingdog: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("scrapingdog: status %d: %s", resp.StatusCode, string(body))
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

func (c *httpClient) SearchMaps(ctx context.Context, query string, page int) (*MapsResponse, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	reqURL := c.baseURL + "/google_maps?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingdog: create maps request")
	}
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "scrapingdog: maps request failed")
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("scrapingdog: maps unexpected status %d: %s", statusCode, string(body))
	}

	var result MapsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "scrapingdog: unmarshal maps response")
	}

	return &result, nil
}

func (c *httpClient) Scrape(ctx context.Context, targetURL string) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("url", targetURL)
	params.Set("dynamic", "false")
	reqURL := c.baseURL + "/scrape?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "scrapingdog: create scrape request")
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "scrapingdog: scrape request failed")
	}

	if statusCode != http.StatusOK {
		return "", eris.Errorf("scrapingdog: scrape unexpected status %d: %s", statusCode, string(body))
	}

	return string(body), nil
}
