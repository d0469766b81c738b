package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CredentialType tags the variant carried by a NormalizedCredential.
type CredentialType string

const (
	CredentialOAuth2   CredentialType = "OAUTH2"
	CredentialOAuth1   CredentialType = "OAUTH1"
	CredentialOAuth2CC CredentialType = "OAUTH2_CC"
	CredentialApp      CredentialType = "APP"
)

// ConfigOverride records caller-supplied client credentials that replaced the
// stored integration's values for a single flow.
type ConfigOverride struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// NormalizedCredential is the closed credential union produced by the
// protocol adapters. Exactly the fields of the tagged variant are set; Raw
// always carries the provider's unmodified token response for forward
// compatibility.
type NormalizedCredential struct {
	Type CredentialType `json:"type"`

	// OAUTH2 / APP
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// OAUTH1
	OAuthToken       string `json:"oauth_token,omitempty"`
	OAuthTokenSecret string `json:"oauth_token_secret,omitempty"`

	// OAUTH2_CC
	Token        string `json:"token,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	ConfigOverride *ConfigOverride `json:"config_override,omitempty"`

	Raw map[string]interface{} `json:"raw,omitempty"`
}

// Value implements driver.Valuer so credentials persist as a JSON column.
func (c NormalizedCredential) Value() (driver.Value, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *NormalizedCredential) Scan(value interface{}) error {
	if value == nil {
		*c = NormalizedCredential{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for NormalizedCredential: %T", value)
	}

	return json.Unmarshal(data, c)
}

// Expired reports whether the credential carries an expiry in the past.
// Credentials without an expiry never expire.
func (c *NormalizedCredential) Expired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// SameKind reports whether two credentials are of the same variant, used to
// classify an upsert as refresh (same kind) versus override (kind changed).
func (c *NormalizedCredential) SameKind(other *NormalizedCredential) bool {
	return other != nil && c.Type == other.Type
}
