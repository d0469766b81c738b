// Package providers holds the immutable per-provider protocol metadata:
// which auth family a provider speaks and the URL/parameter templates used
// to build its authorization and token requests.
package providers

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

// TokenRequestAuthBasic puts client credentials in a Basic authorization
// header on the token request instead of the form body.
const TokenRequestAuthBasic = "basic"

// Template describes one provider's authorization protocol. Templates are
// loaded once from the catalog file and never mutated.
type Template struct {
	Name     string          `yaml:"-"`
	AuthMode models.AuthMode `yaml:"auth_mode" validate:"required"`

	AuthorizationURL string   `yaml:"authorization_url"`
	TokenURL         TokenURL `yaml:"token_url"`

	// RequestURL is the OAuth1 temporary-credential (request token) endpoint.
	RequestURL string `yaml:"request_url"`

	ScopeSeparator string `yaml:"scope_separator" default:" "`
	DisablePKCE    bool   `yaml:"disable_pkce"`

	AuthorizationParams map[string]string `yaml:"authorization_params"`
	TokenParams         map[string]string `yaml:"token_params"`

	// AuthorizationURLReplacements are literal substring replacements applied
	// to the fully built authorization URL, last in the post-processing order.
	AuthorizationURLReplacements map[string]string `yaml:"authorization_url_replacements"`

	TokenRequestAuthMethod string `yaml:"token_request_auth_method" validate:"omitempty,oneof=basic"`

	// AuthorizationURLSkipEncode lists query parameters whose values must not
	// be URL-encoded (some providers reject encoded scope separators).
	AuthorizationURLSkipEncode []string `yaml:"authorization_url_skip_encode"`

	// AuthorizationURLFragment relocates the query string behind the given
	// fragment, e.g. "!/oauth" for providers routing on URL fragments.
	AuthorizationURLFragment string `yaml:"authorization_url_fragment"`
}

// TokenURL is a token endpoint that is either a single URL or a per-auth-mode
// map (some providers expose distinct endpoints for APP vs OAUTH2 flows).
type TokenURL struct {
	url    string
	byMode map[models.AuthMode]string
}

// UnmarshalYAML accepts a scalar URL or a mode-keyed mapping.
func (t *TokenURL) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&t.url)
	case yaml.MappingNode:
		raw := make(map[string]string)
		if err := node.Decode(&raw); err != nil {
			return err
		}
		t.byMode = make(map[models.AuthMode]string, len(raw))
		for mode, u := range raw {
			t.byMode[models.AuthMode(mode)] = u
		}
		return nil
	default:
		return fmt.Errorf("token_url must be a string or a mode map")
	}
}

// For resolves the endpoint for the given auth mode. A scalar URL serves
// every mode.
func (t TokenURL) For(mode models.AuthMode) string {
	if t.url != "" {
		return t.url
	}
	return t.byMode[mode]
}

// IsZero reports whether no endpoint is configured at all.
func (t TokenURL) IsZero() bool {
	return t.url == "" && len(t.byMode) == 0
}

// NewTokenURL builds a scalar TokenURL, used by tests and seeding.
func NewTokenURL(url string) TokenURL {
	return TokenURL{url: url}
}

// NewTokenURLByMode builds a mode-keyed TokenURL.
func NewTokenURLByMode(byMode map[models.AuthMode]string) TokenURL {
	return TokenURL{byMode: byMode}
}
