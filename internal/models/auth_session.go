package models

import "time"

// AuthMode identifies the authorization family of a provider.
type AuthMode string

const (
	AuthModeOAuth1   AuthMode = "OAUTH1"
	AuthModeOAuth2   AuthMode = "OAUTH2"
	AuthModeOAuth2CC AuthMode = "OAUTH2_CC"
	AuthModeApp      AuthMode = "APP"
	AuthModeCustom   AuthMode = "CUSTOM"
)

// Valid reports whether m is one of the supported auth modes.
func (m AuthMode) Valid() bool {
	switch m {
	case AuthModeOAuth1, AuthModeOAuth2, AuthModeOAuth2CC, AuthModeApp, AuthModeCustom:
		return true
	}
	return false
}

// RequiresCredentials reports whether this mode needs a client id/secret pair
// before initiation. Installation flows (APP/CUSTOM) authenticate out-of-band
// on the provider's site, so no credentials are needed at this stage.
func (m AuthMode) RequiresCredentials() bool {
	return m != AuthModeApp && m != AuthModeCustom
}

// AuthSession is the ephemeral state of one in-flight authorization flow.
// Its ID doubles as the OAuth `state` parameter and the session-store key.
// It is created at initiation and consumed (read-and-deleted) exactly once
// when the provider calls back; there are no updates except the OAuth1
// request-token step, which happens before the session is persisted.
type AuthSession struct {
	ID                string    `json:"id"`
	ProviderConfigKey string    `json:"provider_config_key"`
	Provider          string    `json:"provider"` // template name, e.g. "github"
	ConnectionID      string    `json:"connection_id"`
	AuthMode          AuthMode  `json:"auth_mode"`
	CodeVerifier      string    `json:"code_verifier"` // always generated, used only when PKCE is active

	// RequestTokenSecret is set between the OAuth1 request-token step and
	// the access-token exchange; empty for every other mode.
	RequestTokenSecret string `json:"request_token_secret,omitempty"`

	// ConnectionConfig is the merged open map of caller params, user-scope
	// overrides, and connect-session defaults.
	ConnectionConfig map[string]string `json:"connection_config"`

	CallbackURL       string `json:"callback_url"`
	EnvironmentID     string `json:"environment_id"`
	WebSocketClientID string `json:"web_socket_client_id,omitempty"` // waiting client channel; empty = no one listening
	ConnectSessionID  string `json:"connect_session_id,omitempty"`   // end-user reconnect context
	ActivityLogID     string `json:"activity_log_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
