// Package services orchestrates the authorization flows: the initiator
// turns a connect request into a provider redirect (or a direct
// client-credentials result), and the callback dispatcher drives the
// returning redirect through token exchange, credential normalization,
// and connection persistence.
package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/NangoHQ/nango-sub004/internal/audit"
	"github.com/NangoHQ/nango-sub004/internal/hmacauth"
	"github.com/NangoHQ/nango-sub004/internal/hooks"
	"github.com/NangoHQ/nango-sub004/internal/metrics"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/notify"
	"github.com/NangoHQ/nango-sub004/internal/oauth2c"
	"github.com/NangoHQ/nango-sub004/internal/providers"
	"github.com/NangoHQ/nango-sub004/internal/session"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

// Connection config keys recording per-flow credential overrides. They
// ride in the session's connectionConfig between initiation and
// callback and are stripped before the connection is persisted.
const (
	configKeyClientIDOverride     = "oauth_client_id_override"
	configKeyClientSecretOverride = "oauth_client_secret_override"
	configKeyInstallationID       = "installation_id"
	configKeyAppPublicLink        = "app_public_link"
)

// deleteParamSentinel in a caller override removes the key from the
// merged parameter set instead of setting it.
const deleteParamSentinel = "undefined"

// Engine binds the two flow entry points to their collaborators.
type Engine struct {
	store    *store.Store
	sessions session.Store
	registry *providers.Registry
	hmac     *hmacauth.Verifier
	oauth2   *oauth2c.Client
	audit    *audit.Service
	notifier *notify.Service
	hooks    *hooks.Dispatcher
	recorder metrics.Recorder

	// adapters maps each auth mode to its flow implementation; the
	// entry points hold no mode-specific logic beyond the lookup.
	adapters map[models.AuthMode]flowAdapter

	callbackURL     string
	providerTimeout time.Duration
}

// EngineOptions carries the engine's construction-time settings.
type EngineOptions struct {
	Store    *store.Store
	Sessions session.Store
	Registry *providers.Registry
	HMAC     *hmacauth.Verifier
	Audit    *audit.Service
	Notifier *notify.Service
	Hooks    *hooks.Dispatcher
	Recorder metrics.Recorder

	CallbackURL     string
	ProviderTimeout time.Duration
}

// NewEngine wires the engine. Optional collaborators default to
// disabled/no-op implementations.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NewNoopMetrics()
	}
	if opts.HMAC == nil {
		opts.HMAC = hmacauth.New(false, "")
	}
	if opts.Hooks == nil {
		opts.Hooks = hooks.NewDispatcher()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewService(opts.Recorder)
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewService(opts.Store, false, 0)
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 15 * time.Second
	}

	e := &Engine{
		store:           opts.Store,
		sessions:        opts.Sessions,
		registry:        opts.Registry,
		hmac:            opts.HMAC,
		oauth2:          oauth2c.New(opts.ProviderTimeout),
		audit:           opts.Audit,
		notifier:        opts.Notifier,
		hooks:           opts.Hooks,
		recorder:        opts.Recorder,
		callbackURL:     opts.CallbackURL,
		providerTimeout: opts.ProviderTimeout,
	}
	e.adapters = newFlowAdapters(e)
	return e
}

// flowContext is everything resolved once per request: the effective
// provider config (with overrides applied) and the protocol template.
type flowContext struct {
	config   models.EffectiveProviderConfig
	template *providers.Template
}

// resolveFlow looks up provider config and template. Both lookups must
// succeed before any flow can proceed.
func (e *Engine) resolveFlow(providerConfigKey, environmentID string) (*flowContext, *FlowError) {
	cfg, err := e.store.GetProviderConfig(providerConfigKey, environmentID)
	if err != nil {
		if errors.Is(err, store.ErrProviderConfigNotFound) {
			return nil, newFlowError(CodeUnknownProviderConfig,
				"no provider configuration with key %q", providerConfigKey)
		}
		return nil, wrapFlowError(CodeUnknownError, err, "provider config lookup failed")
	}

	tpl, err := e.registry.Get(cfg.Provider)
	if err != nil {
		return nil, newFlowError(CodeUnknownProviderTemplate,
			"no template for provider %q", cfg.Provider)
	}

	return &flowContext{config: cfg.Effective(), template: tpl}, nil
}

// reportFailure performs the failure triad: close the activity log as
// failed, deliver the error to the waiting client, and (when a
// connection attempt was meaningfully started) fire the failure hook.
func (e *Engine) reportFailure(
	ctx context.Context,
	entry *audit.Log,
	outcome notify.Outcome,
	fe *FlowError,
	fireHook bool,
) {
	log.Printf("[Auth] flow failed for connection %q on %q: %v",
		outcome.ConnectionID, outcome.ProviderConfigKey, fe)

	entry.Error(fe.Message, models.ActivityDetails{"error_type": fe.Code})
	entry.Failed()

	outcome.Success = false
	outcome.ErrorType = fe.Code
	outcome.ErrorDesc = fe.Message
	e.notifier.Notify(ctx, outcome)

	if fireHook {
		e.hooks.ConnectionCreationFailed(ctx,
			outcome.ProviderConfigKey, outcome.ConnectionID, outcome.EnvironmentID, fe)
	}
}

// mergeConnectionConfig combines the session's connection config with
// metadata derived from the callback (query parameters, token response
// fields). Non-empty session values win; derived values fill the gaps.
func mergeConnectionConfig(sessionConfig, derived map[string]string) map[string]string {
	merged := make(map[string]string, len(sessionConfig)+len(derived))
	for k, v := range derived {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range sessionConfig {
		if v != "" {
			merged[k] = v
		} else if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return merged
}

// mergeParams overlays caller overrides onto interpolated template
// params. Callers win on conflicts; the "undefined" sentinel deletes.
func mergeParams(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if v == deleteParamSentinel {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

// splitScopes turns the stored comma-separated scope list into its parts.
func splitScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}
	parts := strings.FieldsFunc(scopes, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
