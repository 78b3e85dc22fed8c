package sendgrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounces(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/suppression/bounces", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))

		w.Write([]byte(`[
			{"email":"bounced@example.com","reason":"550 mailbox unavailable","status":"5.1.1","created":1735689600},
			{"email":"gone@example.com","reason":"551 user moved","status":"5.1.6","created":1735776000}
		]`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	bounces, err := client.Bounces(context.Background(), 0, 500)

	require.NoError(t, err)
	require.Len(t, bounces, 2)
	assert.Equal(t, "bounced@example.com", bounces[0].Email)
	assert.Contains(t, bounces[0].Reason, "mailbox unavailable")
}

func TestGlobalUnsubscribes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/suppression/unsubscribes", r.URL.Path)
		w.Write([]byte(`[{"email":"optout@example.com","created":1735689600}]`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	unsubs, err := client.GlobalUnsubscribes(context.Background(), 0, 500)

	require.NoError(t, err)
	require.Len(t, unsubs, 1)
	assert.Equal(t, "optout@example.com", unsubs[0].Email)
}

func TestGroupSuppressions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/asm/groups":
			w.Write([]byte(`[{"id":12345,"name":"Cold Outreach"}]`))
		case "/asm/groups/12345/suppressions":
			w.Write([]byte(`["nothanks@example.com","stop@example.com"]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	groups, err := client.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Cold Outreach", groups[0].Name)

	emails, err := client.GroupSuppressions(context.Background(), groups[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"nothanks@example.com", "stop@example.com"}, emails)
}

func TestGet_AuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"authorization required"}]}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.Bounces(context.Background(), 0, 500)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
