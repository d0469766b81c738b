// Package credentials maps raw provider token responses into the closed set
// of typed credential variants the persistence layer accepts.
package credentials

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

// ErrUnparsable indicates a token response that cannot be shaped into a
// credential. The flow must stop here; a half-formed credential is never
// persisted.
var ErrUnparsable = errors.New("unable to parse token response")

// FromOAuth2Response normalizes an authorization-code token response.
// `expires_in` (relative seconds, number or numeric string) and `expires_at`
// (RFC 3339) are both honored, preferring the absolute form.
func FromOAuth2Response(raw map[string]interface{}, now time.Time) (*models.NormalizedCredential, error) {
	accessToken, ok := stringField(raw, "access_token")
	if !ok || accessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrUnparsable)
	}

	cred := &models.NormalizedCredential{
		Type:        models.CredentialOAuth2,
		AccessToken: accessToken,
		Raw:         raw,
	}
	if refresh, ok := stringField(raw, "refresh_token"); ok {
		cred.RefreshToken = refresh
	}
	if expiresAt, ok := expiryField(raw, now); ok {
		cred.ExpiresAt = &expiresAt
	}
	return cred, nil
}

// FromAppResponse normalizes an installation token response. Providers use
// either `access_token` or `token` for the installation token.
func FromAppResponse(raw map[string]interface{}, now time.Time) (*models.NormalizedCredential, error) {
	accessToken, ok := stringField(raw, "access_token")
	if !ok {
		accessToken, ok = stringField(raw, "token")
	}
	if !ok || accessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrUnparsable)
	}

	cred := &models.NormalizedCredential{
		Type:        models.CredentialApp,
		AccessToken: accessToken,
		Raw:         raw,
	}
	if expiresAt, ok := expiryField(raw, now); ok {
		cred.ExpiresAt = &expiresAt
	}
	return cred, nil
}

// FromOAuth1Tokens normalizes an OAuth1 access-token pair.
func FromOAuth1Tokens(token, secret string, raw map[string]interface{}) (*models.NormalizedCredential, error) {
	if token == "" || secret == "" {
		return nil, fmt.Errorf("%w: missing oauth_token or oauth_token_secret", ErrUnparsable)
	}
	return &models.NormalizedCredential{
		Type:             models.CredentialOAuth1,
		OAuthToken:       token,
		OAuthTokenSecret: secret,
		Raw:              raw,
	}, nil
}

// FromClientCredentials normalizes a client-credentials token. The caller's
// client id/secret pair is retained on the credential so the token can be
// re-minted when it expires.
func FromClientCredentials(
	token *oauth2.Token,
	raw map[string]interface{},
	clientID, clientSecret string,
) (*models.NormalizedCredential, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrUnparsable)
	}

	cred := &models.NormalizedCredential{
		Type:         models.CredentialOAuth2CC,
		Token:        token.AccessToken,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Raw:          raw,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	return cred, nil
}

// stringField fetches a field as a string, accepting numeric JSON values.
func stringField(raw map[string]interface{}, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

// expiryField derives the credential expiry from the response. Preference
// order: absolute expires_at (RFC 3339 or unix seconds), then relative
// expires_in seconds from now.
func expiryField(raw map[string]interface{}, now time.Time) (time.Time, bool) {
	if v, ok := raw["expires_at"]; ok && v != nil {
		switch at := v.(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, at); err == nil {
				return ts.UTC(), true
			}
		case float64:
			return time.Unix(int64(at), 0).UTC(), true
		}
	}

	if v, ok := raw["expires_in"]; ok && v != nil {
		var seconds float64
		switch in := v.(type) {
		case float64:
			seconds = in
		case string:
			parsed, err := strconv.ParseFloat(in, 64)
			if err != nil {
				return time.Time{}, false
			}
			seconds = parsed
		default:
			return time.Time{}, false
		}
		return now.Add(time.Duration(seconds) * time.Second).UTC(), true
	}

	return time.Time{}, false
}
