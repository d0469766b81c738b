package oauth1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackURLWithState(t *testing.T) {
	u, err := CallbackURLWithState("https://engine.example.com/oauth/callback", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "https://engine.example.com/oauth/callback?state=sess-1", u)

	// Existing query parameters are preserved
	u, err = CallbackURLWithState("https://engine.example.com/oauth/callback?env=prod", "sess-1")
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "prod", parsed.Query().Get("env"))
	assert.Equal(t, "sess-1", parsed.Query().Get("state"))

	_, err = CallbackURLWithState("://bad", "sess-1")
	assert.Error(t, err)
}

func TestRequestToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The signed request carries the consumer key and callback
		auth := r.Header.Get("Authorization")
		assert.Contains(t, auth, "oauth_consumer_key")
		assert.Contains(t, auth, "oauth_callback")

		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
	}))
	defer srv.Close()

	c := New("ck", "cs", "https://engine.example.com/oauth/callback?state=s1", Endpoints{
		RequestTokenURL: srv.URL,
		AuthorizeURL:    "https://provider.example.com/authorize",
		AccessTokenURL:  "https://provider.example.com/access_token",
	})

	token, secret, err := c.RequestToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "req-token", token)
	assert.Equal(t, "req-secret", secret)
}

func TestRequestToken_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("ck", "cs", "https://cb.example.com?state=s1", Endpoints{
		RequestTokenURL: srv.URL,
		AuthorizeURL:    "https://provider.example.com/authorize",
		AccessTokenURL:  "https://provider.example.com/access_token",
	})

	_, _, err := c.RequestToken(context.Background())
	assert.Error(t, err)
}

func TestRequestToken_ContextDeadline(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := New("ck", "cs", "https://cb.example.com?state=s1", Endpoints{
		RequestTokenURL: srv.URL,
		AuthorizeURL:    "https://provider.example.com/authorize",
		AccessTokenURL:  "https://provider.example.com/access_token",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := c.RequestToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAuthorizationURL(t *testing.T) {
	c := New("ck", "cs", "https://cb.example.com?state=s1", Endpoints{
		RequestTokenURL: "https://provider.example.com/request_token",
		AuthorizeURL:    "https://provider.example.com/authorize",
		AccessTokenURL:  "https://provider.example.com/access_token",
	})

	u, err := c.AuthorizationURL("req-token")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "provider.example.com", parsed.Host)
	assert.Equal(t, "req-token", parsed.Query().Get("oauth_token"))
}

func TestAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.Contains(t, auth, `oauth_token="req-token"`)
		assert.Contains(t, auth, `oauth_verifier="verifier-1"`)

		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=access-token&oauth_token_secret=access-secret"))
	}))
	defer srv.Close()

	c := New("ck", "cs", "https://cb.example.com?state=s1", Endpoints{
		RequestTokenURL: "https://provider.example.com/request_token",
		AuthorizeURL:    "https://provider.example.com/authorize",
		AccessTokenURL:  srv.URL,
	})

	token, secret, err := c.AccessToken(context.Background(), "req-token", "req-secret", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, "access-token", token)
	assert.Equal(t, "access-secret", secret)
}
