package providers

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

// ErrTemplateNotFound is returned when no template exists for a provider name.
var ErrTemplateNotFound = errors.New("provider template not found")

// Registry is the read-only catalog of provider templates keyed by provider
// name. Safe for concurrent use after construction.
type Registry struct {
	templates map[string]*Template
}

// LoadFile reads and validates the YAML catalog at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}
	return Load(data)
}

// Load parses a YAML catalog of the form `providerName: {template...}`.
// Defaults are applied and each template is validated before the registry
// is returned; a single malformed template fails the whole load.
func Load(data []byte) (*Registry, error) {
	raw := make(map[string]*Template)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	validate := validator.New()

	for name, tpl := range raw {
		if tpl == nil {
			return nil, fmt.Errorf("provider %q: empty template", name)
		}
		tpl.Name = name

		if err := defaults.Set(tpl); err != nil {
			return nil, fmt.Errorf("provider %q: failed to apply defaults: %w", name, err)
		}
		if err := validate.Struct(tpl); err != nil {
			return nil, fmt.Errorf("provider %q: invalid template: %w", name, err)
		}
		if err := checkTemplate(tpl); err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
	}

	return &Registry{templates: raw}, nil
}

// checkTemplate enforces the per-mode required fields that struct tags
// cannot express.
func checkTemplate(tpl *Template) error {
	if !tpl.AuthMode.Valid() {
		return fmt.Errorf("unsupported auth_mode %q", tpl.AuthMode)
	}

	switch tpl.AuthMode {
	case models.AuthModeOAuth2:
		if tpl.AuthorizationURL == "" {
			return errors.New("authorization_url is required for OAUTH2")
		}
		if tpl.TokenURL.IsZero() {
			return errors.New("token_url is required for OAUTH2")
		}
	case models.AuthModeOAuth2CC:
		if tpl.TokenURL.IsZero() {
			return errors.New("token_url is required for OAUTH2_CC")
		}
	case models.AuthModeOAuth1:
		if tpl.RequestURL == "" {
			return errors.New("request_url is required for OAUTH1")
		}
		if tpl.AuthorizationURL == "" || tpl.TokenURL.IsZero() {
			return errors.New("authorization_url and token_url are required for OAUTH1")
		}
	case models.AuthModeApp, models.AuthModeCustom:
		if tpl.AuthorizationURL == "" {
			return errors.New("authorization_url is required for installation flows")
		}
	}
	return nil
}

// Get returns the template for a provider name.
func (r *Registry) Get(provider string) (*Template, error) {
	tpl, ok := r.templates[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, provider)
	}
	return tpl, nil
}

// Names returns all catalog provider names (unordered), for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	return names
}
