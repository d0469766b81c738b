package oauth2c

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrTokenResponseUnparsable indicates the provider returned a 2xx token
// response whose body could not be decoded as JSON or a form encoding.
var ErrTokenResponseUnparsable = errors.New("token response unparsable")

// Client performs token requests against provider endpoints. Every call is
// bounded by the underlying http.Client timeout; failed exchanges are never
// retried here, the user must restart the flow.
type Client struct {
	httpClient *http.Client
}

// New creates a token client with the given timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExchangeRequest carries everything needed for an authorization-code token
// exchange. ExtraParams come from the provider template's token_params with
// grant_type stripped; the exchange sets grant_type itself.
type ExchangeRequest struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string

	// CodeVerifier is sent when PKCE is active; empty omits the parameter.
	CodeVerifier string

	// BasicAuth moves client credentials from the form body into a Basic
	// authorization header (template token_request_auth_method: basic).
	BasicAuth bool

	ExtraParams map[string]string
}

// ExchangeCode swaps an authorization code for the provider's raw token
// response. The response is returned as an untyped map so the credential
// normalizer can keep the full payload; both JSON and form-encoded bodies
// are understood (GitHub answers the latter).
func (c *Client) ExchangeCode(ctx context.Context, req ExchangeRequest) (map[string]interface{}, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", req.RedirectURI)
	for k, v := range req.ExtraParams {
		if k == "grant_type" {
			continue
		}
		form.Set(k, v)
	}
	if req.CodeVerifier != "" {
		form.Set("code_verifier", req.CodeVerifier)
	}

	if req.BasicAuth {
		form.Del("client_id")
		form.Del("client_secret")
	} else {
		form.Set("client_id", req.ClientID)
		form.Set("client_secret", req.ClientSecret)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, req.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if req.BasicAuth {
		httpReq.SetBasicAuth(url.QueryEscape(req.ClientID), url.QueryEscape(req.ClientSecret))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	raw, err := parseTokenBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// parseTokenBody decodes a token response body into an untyped map. JSON is
// tried first regardless of Content-Type; several providers mislabel their
// responses.
func parseTokenBody(contentType string, body []byte) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(body, &raw); err == nil {
		return raw, nil
	}

	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" || mediaType == "" {
		values, err := url.ParseQuery(strings.TrimSpace(string(body)))
		if err == nil && len(values) > 0 {
			for k := range values {
				raw[k] = values.Get(k)
			}
			return raw, nil
		}
	}

	return nil, fmt.Errorf("%w: content-type %q", ErrTokenResponseUnparsable, contentType)
}

// ClientCredentialsRequest carries a direct client-credentials exchange.
type ClientCredentialsRequest struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	BasicAuth    bool
	ExtraParams  map[string]string
}

// ClientCredentials performs a client-credentials grant via
// golang.org/x/oauth2 and returns both the parsed token and a raw view of
// the response fields.
func (c *Client) ClientCredentials(
	ctx context.Context,
	req ClientCredentialsRequest,
) (*oauth2.Token, map[string]interface{}, error) {
	cfg := &clientcredentials.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		TokenURL:     req.TokenURL,
		Scopes:       req.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if req.BasicAuth {
		cfg.AuthStyle = oauth2.AuthStyleInHeader
	}
	if len(req.ExtraParams) > 0 {
		cfg.EndpointParams = url.Values{}
		for k, v := range req.ExtraParams {
			if k == "grant_type" {
				continue
			}
			cfg.EndpointParams.Set(k, v)
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := cfg.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("client credentials exchange failed: %w", err)
	}

	raw := map[string]interface{}{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
	}
	if !token.Expiry.IsZero() {
		raw["expiry"] = token.Expiry.Format(time.RFC3339)
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		raw["scope"] = scope
	}

	return token, raw, nil
}
