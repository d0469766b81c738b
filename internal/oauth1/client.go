// Package oauth1 drives the three-legged OAuth 1.0a sequence: temporary
// request token, user authorization redirect, access-token exchange. Signing
// and the token endpoints are handled by github.com/dghubble/oauth1; this
// package adds the state smuggling the engine needs (OAuth1 has no native
// state parameter, so the session id rides on the registered callback URL)
// and context deadlines around the blocking provider calls.
package oauth1

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dghubble/oauth1"
)

// Endpoints are the three provider URLs of one OAuth1 template, already
// interpolated.
type Endpoints struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
}

// Client performs the provider calls for one flow.
type Client struct {
	config *oauth1.Config
}

// New builds a flow client. callbackURL must already carry the state query
// parameter; providers echo it back verbatim on the callback.
func New(consumerKey, consumerSecret, callbackURL string, endpoints Endpoints) *Client {
	return &Client{
		config: &oauth1.Config{
			ConsumerKey:    consumerKey,
			ConsumerSecret: consumerSecret,
			CallbackURL:    callbackURL,
			Endpoint: oauth1.Endpoint{
				RequestTokenURL: endpoints.RequestTokenURL,
				AuthorizeURL:    endpoints.AuthorizeURL,
				AccessTokenURL:  endpoints.AccessTokenURL,
			},
		},
	}
}

// CallbackURLWithState appends state as a query parameter on the callback
// URL. Documented protocol adaptation, not a workaround: the provider keeps
// the callback URL opaque and returns it untouched, which is the only place
// an OAuth1 flow can carry the session id.
func CallbackURLWithState(callbackURL, state string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", fmt.Errorf("invalid callback url: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RequestToken obtains the temporary credential (three-legged step 1).
func (c *Client) RequestToken(ctx context.Context) (token, secret string, err error) {
	type result struct {
		token, secret string
		err           error
	}
	done := make(chan result, 1)
	go func() {
		t, s, err := c.config.RequestToken()
		done <- result{t, s, err}
	}()

	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", "", fmt.Errorf("request token failed: %w", r.err)
		}
		return r.token, r.secret, nil
	}
}

// AuthorizationURL is the provider page the user is redirected to with the
// request token (three-legged step 2).
func (c *Client) AuthorizationURL(requestToken string) (string, error) {
	u, err := c.config.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization url: %w", err)
	}
	return u.String(), nil
}

// AccessToken exchanges the authorized request token, its stored secret, and
// the callback verifier for the final token pair (three-legged step 3).
func (c *Client) AccessToken(
	ctx context.Context,
	requestToken, requestSecret, verifier string,
) (token, secret string, err error) {
	type result struct {
		token, secret string
		err           error
	}
	done := make(chan result, 1)
	go func() {
		t, s, err := c.config.AccessToken(requestToken, requestSecret, verifier)
		done <- result{t, s, err}
	}()

	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", "", fmt.Errorf("access token exchange failed: %w", r.err)
		}
		return r.token, r.secret, nil
	}
}
