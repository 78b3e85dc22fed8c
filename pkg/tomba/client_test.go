package tomba

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domain-search", r.URL.Path)
		assert.Equal(t, "acmehvac.com", r.URL.Query().Get("domain"))
		assert.Equal(t, "test-key", r.Header.Get("X-Tomba-Key"))
		assert.Equal(t, "test-secret", r.Header.Get("X-Tomba-Secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"organization":{"website_url":"acmehvac.com","organization":"Acme HVAC"},
			"emails":[
				{"email":"sales@acmehvac.com","type":"generic","score":88},
				{"email":"bob@acmehvac.com","type":"personal","score":72,
				 "first_name":"Bob","last_name":"Smith","position":"Manager"}
			]}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-secret", WithBaseURL(srv.URL), WithRateLimit(1000))
	got, err := client.DomainSearch(context.Background(), "acmehvac.com")

	require.NoError(t, err)
	require.Len(t, got.Data.Emails, 2)
	assert.Equal(t, "sales@acmehvac.com", got.Data.Emails[0].Email)
	assert.Equal(t, 88, got.Data.Emails[0].Score)
	assert.Equal(t, "Bob", got.Data.Emails[1].FirstName)
}

func TestDomainSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-secret", WithBaseURL(srv.URL), WithRateLimit(1000))
	got, err := client.DomainSearch(context.Background(), "unknown.example.com")

	require.NoError(t, err)
	assert.Empty(t, got.Data.Emails)
}

func TestDomainSearch_AuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer srv.Close()

	client := NewClient("bad", "creds", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.DomainSearch(context.Background(), "acmehvac.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
