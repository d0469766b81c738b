package models

import "time"

// ProviderConfig is a stored integration: one provider template configured
// with an environment's own client credentials and scopes.
type ProviderConfig struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UniqueKey string `gorm:"not null;uniqueIndex:idx_provider_config_key_env,priority:1"`
	Provider  string `gorm:"not null"` // template name, e.g. "github"

	OAuthClientID     string `gorm:"column:oauth_client_id"`
	OAuthClientSecret string `gorm:"column:oauth_client_secret;type:text"` // encrypted at rest by the persistence layer
	OAuthScopes       string // comma-separated

	// Custom holds provider-specific extras, e.g. the marketplace app id and
	// public link for installation flows.
	Custom StringMap `gorm:"type:text"`

	EnvironmentID string `gorm:"not null;uniqueIndex:idx_provider_config_key_env,priority:2"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProviderConfig) TableName() string {
	return "provider_configs"
}

// EffectiveProviderConfig is the per-flow view of a ProviderConfig after
// caller overrides are applied. It is built once at the start of a flow and
// never written back; the stored row is not mutated.
type EffectiveProviderConfig struct {
	UniqueKey     string
	Provider      string
	ClientID      string
	ClientSecret  string
	Scopes        string
	Custom        StringMap
	EnvironmentID string

	// CredentialsOverridden is true when the caller supplied its own
	// client id/secret for this flow; the resulting credential is tagged
	// with a config override record.
	CredentialsOverridden bool
}

// Effective builds the per-flow config from the stored row.
func (c *ProviderConfig) Effective() EffectiveProviderConfig {
	return EffectiveProviderConfig{
		UniqueKey:     c.UniqueKey,
		Provider:      c.Provider,
		ClientID:      c.OAuthClientID,
		ClientSecret:  c.OAuthClientSecret,
		Scopes:        c.OAuthScopes,
		Custom:        c.Custom.Clone(),
		EnvironmentID: c.EnvironmentID,
	}
}
