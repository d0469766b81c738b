package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestFromOAuth2Response(t *testing.T) {
	raw := map[string]interface{}{
		"access_token":  "x",
		"refresh_token": "y",
		"expires_in":    float64(3600),
		"scope":         "repo",
	}

	cred, err := FromOAuth2Response(raw, now)
	require.NoError(t, err)

	assert.Equal(t, models.CredentialOAuth2, cred.Type)
	assert.Equal(t, "x", cred.AccessToken)
	assert.Equal(t, "y", cred.RefreshToken)
	require.NotNil(t, cred.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *cred.ExpiresAt)
	// Raw response retained untouched
	assert.Equal(t, "repo", cred.Raw["scope"])
}

func TestFromOAuth2Response_ExpiresInAsString(t *testing.T) {
	cred, err := FromOAuth2Response(map[string]interface{}{
		"access_token": "x",
		"expires_in":   "7200",
	}, now)
	require.NoError(t, err)
	require.NotNil(t, cred.ExpiresAt)
	assert.Equal(t, now.Add(2*time.Hour), *cred.ExpiresAt)
}

func TestFromOAuth2Response_AbsoluteExpiresAtWins(t *testing.T) {
	cred, err := FromOAuth2Response(map[string]interface{}{
		"access_token": "x",
		"expires_at":   "2024-06-01T00:00:00Z",
		"expires_in":   float64(60),
	}, now)
	require.NoError(t, err)
	require.NotNil(t, cred.ExpiresAt)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *cred.ExpiresAt)
}

func TestFromOAuth2Response_NoExpiry(t *testing.T) {
	cred, err := FromOAuth2Response(map[string]interface{}{"access_token": "x"}, now)
	require.NoError(t, err)
	assert.Nil(t, cred.ExpiresAt)
	assert.False(t, cred.Expired())
}

func TestFromOAuth2Response_MissingAccessToken(t *testing.T) {
	_, err := FromOAuth2Response(map[string]interface{}{"error": "bad"}, now)
	assert.ErrorIs(t, err, ErrUnparsable)

	_, err = FromOAuth2Response(map[string]interface{}{"access_token": ""}, now)
	assert.ErrorIs(t, err, ErrUnparsable)

	// A non-string access_token is unparsable, not coerced
	_, err = FromOAuth2Response(map[string]interface{}{"access_token": true}, now)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestFromAppResponse(t *testing.T) {
	// GitHub-style installation tokens use "token"
	cred, err := FromAppResponse(map[string]interface{}{
		"token":      "ghs_abc",
		"expires_at": "2024-05-01T13:00:00Z",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, models.CredentialApp, cred.Type)
	assert.Equal(t, "ghs_abc", cred.AccessToken)
	require.NotNil(t, cred.ExpiresAt)

	// access_token preferred when both present
	cred, err = FromAppResponse(map[string]interface{}{
		"access_token": "a",
		"token":        "b",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "a", cred.AccessToken)

	_, err = FromAppResponse(map[string]interface{}{}, now)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestFromOAuth1Tokens(t *testing.T) {
	cred, err := FromOAuth1Tokens("tok", "sec", map[string]interface{}{"screen_name": "a"})
	require.NoError(t, err)
	assert.Equal(t, models.CredentialOAuth1, cred.Type)
	assert.Equal(t, "tok", cred.OAuthToken)
	assert.Equal(t, "sec", cred.OAuthTokenSecret)

	_, err = FromOAuth1Tokens("", "sec", nil)
	assert.ErrorIs(t, err, ErrUnparsable)
	_, err = FromOAuth1Tokens("tok", "", nil)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestFromClientCredentials(t *testing.T) {
	token := &oauth2.Token{
		AccessToken: "cc",
		Expiry:      now.Add(time.Hour),
	}

	cred, err := FromClientCredentials(token, map[string]interface{}{"access_token": "cc"}, "id", "secret")
	require.NoError(t, err)
	assert.Equal(t, models.CredentialOAuth2CC, cred.Type)
	assert.Equal(t, "cc", cred.Token)
	assert.Equal(t, "id", cred.ClientID)
	assert.Equal(t, "secret", cred.ClientSecret)
	require.NotNil(t, cred.ExpiresAt)

	_, err = FromClientCredentials(nil, nil, "id", "secret")
	assert.ErrorIs(t, err, ErrUnparsable)
	_, err = FromClientCredentials(&oauth2.Token{}, nil, "id", "secret")
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestCredentialKindComparison(t *testing.T) {
	a := &models.NormalizedCredential{Type: models.CredentialOAuth2}
	b := &models.NormalizedCredential{Type: models.CredentialOAuth2}
	c := &models.NormalizedCredential{Type: models.CredentialOAuth1}

	assert.True(t, a.SameKind(b))
	assert.False(t, a.SameKind(c))
	assert.False(t, a.SameKind(nil))
}
