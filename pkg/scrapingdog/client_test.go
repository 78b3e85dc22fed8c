package scrapingdog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchMaps_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/google_maps", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "hvac companies in Austin, TX", r.URL.Query().Get("query"))
		assert.Equal(t, "0", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"search_results":[
			{"title":"Acme HVAC","address":"123 Main St, Austin, TX","phone":"(512) 555-0100",
			 "website":"https://acmehvac.com","rating":4.8,"reviews":120,
			 "gps_coordinates":{"latitude":30.2672,"longitude":-97.7431}},
			{"title":"Cool Air Co","address":"456 Oak Ave, Austin, TX","phone":"",
			 "website":"","gps_coordinates":{"latitude":30.25,"longitude":-97.75}}
		]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	got, err := client.SearchMaps(context.Background(), "hvac companies in Austin, TX", 0)

	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "Acme HVAC", got.Results[0].Title)
	assert.Equal(t, "https://acmehvac.com", got.Results[0].Website)
	assert.InDelta(t, 30.2672, got.Results[0].Coordinates.Latitude, 0.0001)
	assert.Empty(t, got.Results[1].Website)
}

func TestSearchMaps_RetriesOn429(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"search_results":[]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	got, err := client.SearchMaps(context.Background(), "hvac", 0)

	require.NoError(t, err)
	assert.Empty(t, got.Results)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchMaps_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid query"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.SearchMaps(context.Background(), "", 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestScrape_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "https://acmehvac.com", r.URL.Query().Get("url"))
		w.Write([]byte("<html><body>Acme HVAC, family owned since 1987</body></html>"))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	content, err := client.Scrape(context.Background(), "https://acmehvac.com")

	require.NoError(t, err)
	assert.Contains(t, content, "family owned since 1987")
}

func TestScrape_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such page"))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.Scrape(context.Background(), "https://gone.example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
