package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NangoHQ/nango-sub004/internal/audit"
	"github.com/NangoHQ/nango-sub004/internal/credentials"
	"github.com/NangoHQ/nango-sub004/internal/hooks"
	"github.com/NangoHQ/nango-sub004/internal/interpolate"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/notify"
	"github.com/NangoHQ/nango-sub004/internal/oauth1"
	"github.com/NangoHQ/nango-sub004/internal/oauth2c"
	"github.com/NangoHQ/nango-sub004/internal/providers"
)

// InitiationRequest is the inbound connect request. Everything arrives
// on the query string; there is no request body.
type InitiationRequest struct {
	ProviderConfigKey string
	ConnectionID      string // generated when absent
	EnvironmentID     string
	WSClientID        string
	UserScope         string
	HMACDigest        string

	// Params seeds the flow's connectionConfig.
	Params map[string]string

	// AuthorizationParams override the template's authorization params;
	// the value "undefined" deletes a key.
	AuthorizationParams map[string]string

	// CredentialOverrides replace the stored client id/secret for this
	// flow only. Required for client-credentials flows, which never use
	// the stored secret.
	CredentialOverrides *models.ConfigOverride

	// ConnectSessionID marks an end-user reconnect context; HMAC
	// verification is skipped for these already-authenticated sessions.
	ConnectSessionID string
}

// InitiationResult is either a redirect target (interactive flows) or,
// for client-credentials, the directly created connection.
type InitiationResult struct {
	RedirectURL string
	SessionID   string

	Connection *models.Connection
	Operation  models.UpsertOperation
}

// Initiate validates the request, resolves provider config and
// template, applies overrides, and dispatches to the auth-mode branch.
// Interactive modes persist an AuthSession and return a redirect;
// client-credentials completes synchronously.
func (e *Engine) Initiate(ctx context.Context, req InitiationRequest) (result *InitiationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newFlowError(CodeUnknownError, "internal error: %v", r)
		}
	}()

	if req.ConnectionID == "" {
		req.ConnectionID = uuid.New().String()
	}

	flow, fe := e.resolveFlow(req.ProviderConfigKey, req.EnvironmentID)
	if fe != nil {
		entry, _ := e.audit.Start(models.ActivityAuth, req.ProviderConfigKey, "", req.ConnectionID, req.EnvironmentID)
		e.reportFailure(ctx, entry, e.initOutcome(req, ""), fe, false)
		e.recorder.RecordInitiation("", false)
		return nil, fe
	}

	action := models.ActivityAuth
	if flow.template.AuthMode == models.AuthModeOAuth2CC {
		action = models.ActivityToken
	}
	entry, auditErr := e.audit.Start(action, req.ProviderConfigKey, flow.config.Provider, req.ConnectionID, req.EnvironmentID)
	if auditErr != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", auditErr)
	}

	fail := func(fe *FlowError) (*InitiationResult, error) {
		e.reportFailure(ctx, entry, e.initOutcome(req, string(flow.template.AuthMode)), fe, false)
		e.recorder.RecordInitiation(string(flow.template.AuthMode), false)
		return nil, fe
	}

	// HMAC protects the public initiation endpoint; reconnect sessions
	// are already authenticated upstream.
	if e.hmac.Enabled() && req.ConnectSessionID == "" {
		if req.HMACDigest == "" {
			return fail(newFlowError(CodeMissingHMAC, "missing HMAC digest"))
		}
		if !e.hmac.Verify(req.HMACDigest, req.ProviderConfigKey, req.ConnectionID) {
			return fail(newFlowError(CodeInvalidHMAC, "invalid HMAC digest"))
		}
	}

	// A reconnect reuses the identity of the existing connection.
	var connectSession *models.ConnectSession
	if req.ConnectSessionID != "" {
		cs, _, csErr := e.store.GetConnectSession(req.ConnectSessionID)
		if csErr != nil {
			return fail(wrapFlowError(CodeInvalidConnection, csErr,
				"connect session %q cannot be resolved", req.ConnectSessionID))
		}
		connectSession = cs
		if cs.ConnectionID != "" {
			existing, connErr := e.store.GetConnection(cs.ConnectionID, req.ProviderConfigKey, req.EnvironmentID)
			if connErr != nil {
				return fail(newFlowError(CodeInvalidConnection,
					"connection %q referenced by the reconnect session does not exist", cs.ConnectionID))
			}
			req.ConnectionID = existing.ConnectionID
		}
	}

	connectionConfig := make(map[string]string)
	if connectSession != nil {
		for k, v := range connectSession.ConnectionDefaults {
			connectionConfig[k] = v
		}
	}
	for k, v := range req.Params {
		connectionConfig[k] = v
	}

	// Caller credentials replace the stored pair for this flow only and
	// are recorded for the credential-override tagging at callback time.
	if req.CredentialOverrides != nil &&
		(req.CredentialOverrides.ClientID != "" || req.CredentialOverrides.ClientSecret != "") {
		flow.config.ClientID = req.CredentialOverrides.ClientID
		flow.config.ClientSecret = req.CredentialOverrides.ClientSecret
		flow.config.CredentialsOverridden = true
		connectionConfig[configKeyClientIDOverride] = req.CredentialOverrides.ClientID
		connectionConfig[configKeyClientSecretOverride] = req.CredentialOverrides.ClientSecret
	}

	// Scope precedence: reconnect-session override, then user scope,
	// then the stored integration scopes.
	scopes := flow.config.Scopes
	if req.UserScope != "" {
		scopes = req.UserScope
	}
	if connectSession != nil && connectSession.OverrideScopes != "" {
		scopes = connectSession.OverrideScopes
	}
	flow.config.Scopes = scopes

	if flow.template.AuthMode.RequiresCredentials() &&
		(flow.config.ClientID == "" || flow.config.ClientSecret == "") {
		return fail(newFlowError(CodeInvalidProviderConfig,
			"provider configuration %q has no client credentials", req.ProviderConfigKey))
	}

	sess := &models.AuthSession{
		ID:                uuid.New().String(),
		ProviderConfigKey: req.ProviderConfigKey,
		Provider:          flow.config.Provider,
		ConnectionID:      req.ConnectionID,
		AuthMode:          flow.template.AuthMode,
		ConnectionConfig:  connectionConfig,
		CallbackURL:       e.callbackURL,
		EnvironmentID:     req.EnvironmentID,
		WebSocketClientID: req.WSClientID,
		ConnectSessionID:  req.ConnectSessionID,
		ActivityLogID:     entry.ID(),
		CreatedAt:         time.Now(),
	}

	adapter, ok := e.adapters[flow.template.AuthMode]
	if !ok {
		return fail(newFlowError(CodeUnknownAuthMode,
			"auth mode %q is not supported", flow.template.AuthMode))
	}
	result, fe = adapter.initiate(ctx, flow, sess, req, entry)
	if fe != nil {
		return fail(fe)
	}
	e.recorder.RecordInitiation(string(flow.template.AuthMode), true)
	return result, nil
}

// initOutcome builds the failure-notification skeleton for initiation
// errors.
func (e *Engine) initOutcome(req InitiationRequest, authMode string) notify.Outcome {
	return notify.Outcome{
		ProviderConfigKey: req.ProviderConfigKey,
		ConnectionID:      req.ConnectionID,
		AuthMode:          authMode,
		EnvironmentID:     req.EnvironmentID,
		WSClientID:        req.WSClientID,
	}
}

// initiateOAuth2 builds the interactive authorization-code redirect.
func (e *Engine) initiateOAuth2(
	ctx context.Context,
	flow *flowContext,
	sess *models.AuthSession,
	req InitiationRequest,
	entry *audit.Log,
) (*InitiationResult, *FlowError) {
	tpl := flow.template
	tokenURL := tpl.TokenURL.For(models.AuthModeOAuth2)

	// Every template the flow will interpolate must be satisfiable now;
	// finding out at callback time would strand the user.
	guarded := map[string]string{
		"authorization_url": tpl.AuthorizationURL,
		"token_url":         tokenURL,
	}
	for k, v := range tpl.AuthorizationParams {
		guarded["authorization_params."+k] = v
	}
	for k, v := range tpl.TokenParams {
		guarded["token_params."+k] = v
	}
	if err := interpolate.ValidateAll(guarded, sess.ConnectionConfig); err != nil {
		return nil, wrapFlowError(CodeInvalidConnectionConfig, err,
			"connection config does not satisfy the provider templates")
	}

	if grantType, ok := tpl.TokenParams["grant_type"]; ok && grantType != "authorization_code" {
		return nil, newFlowError(CodeUnknownGrantType,
			"grant type %q is not supported on the interactive path", grantType)
	}

	verifier, err := oauth2c.GenerateVerifier()
	if err != nil {
		return nil, wrapFlowError(CodeUnknownError, err, "failed to generate code verifier")
	}
	sess.CodeVerifier = verifier

	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, wrapFlowError(CodeUnknownError, err, "failed to persist auth session")
	}
	e.recorder.RecordSessionCreated()

	params := mergeParams(
		interpolate.ApplyMap(tpl.AuthorizationParams, sess.ConnectionConfig),
		req.AuthorizationParams,
	)
	if _, ok := params["response_type"]; !ok {
		params["response_type"] = "code"
	}
	params["client_id"] = flow.config.ClientID
	params["redirect_uri"] = sess.CallbackURL
	params["state"] = sess.ID
	if scopes := splitScopes(flow.config.Scopes); len(scopes) > 0 {
		params["scope"] = strings.Join(scopes, tpl.ScopeSeparator)
	}
	if !tpl.DisablePKCE {
		params["code_challenge"] = oauth2c.ChallengeS256(verifier)
		params["code_challenge_method"] = "S256"
	}

	redirect := oauth2c.AuthorizationURL{
		BaseURL:      interpolate.Apply(tpl.AuthorizationURL, sess.ConnectionConfig),
		Params:       params,
		SkipEncode:   tpl.AuthorizationURLSkipEncode,
		Fragment:     tpl.AuthorizationURLFragment,
		Replacements: tpl.AuthorizationURLReplacements,
	}.String()

	entry.Info("built authorization redirect", models.ActivityDetails{
		"provider": flow.config.Provider,
		"pkce":     !tpl.DisablePKCE,
	})
	return &InitiationResult{RedirectURL: redirect, SessionID: sess.ID}, nil
}

// initiateInstallation handles APP and CUSTOM marketplace installs: no
// PKCE and no client secret at this stage, the provider completes the
// installation out-of-band and calls back with an installation id.
func (e *Engine) initiateInstallation(
	ctx context.Context,
	flow *flowContext,
	sess *models.AuthSession,
	entry *audit.Log,
) (*InitiationResult, *FlowError) {
	tpl := flow.template

	values := make(map[string]string, len(sess.ConnectionConfig)+len(tpl.AuthorizationParams)+1)
	for k, v := range sess.ConnectionConfig {
		values[k] = v
	}
	for k, v := range tpl.AuthorizationParams {
		values[k] = v
	}
	if link, ok := flow.config.Custom[configKeyAppPublicLink]; ok {
		values[configKeyAppPublicLink] = link
	}

	if err := interpolate.Validate("authorization_url", tpl.AuthorizationURL, values); err != nil {
		return nil, wrapFlowError(CodeInvalidConnectionConfig, err,
			"connection config does not satisfy the installation url template")
	}

	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, wrapFlowError(CodeUnknownError, err, "failed to persist auth session")
	}
	e.recorder.RecordSessionCreated()

	redirect := interpolate.Apply(tpl.AuthorizationURL, values)
	sep := "?"
	if strings.Contains(redirect, "?") {
		sep = "&"
	}
	redirect += sep + "state=" + sess.ID

	entry.Info("built installation redirect", models.ActivityDetails{
		"provider": flow.config.Provider,
	})
	return &InitiationResult{RedirectURL: redirect, SessionID: sess.ID}, nil
}

// initiateOAuth1 performs the request-token leg and redirects to the
// provider's authorization page. A request-token failure is fatal and
// leaves no session behind.
func (e *Engine) initiateOAuth1(
	ctx context.Context,
	flow *flowContext,
	sess *models.AuthSession,
	entry *audit.Log,
) (*InitiationResult, *FlowError) {
	tpl := flow.template
	cc := sess.ConnectionConfig

	callbackWithState, err := oauth1.CallbackURLWithState(sess.CallbackURL, sess.ID)
	if err != nil {
		return nil, wrapFlowError(CodeUnknownError, err, "failed to build oauth1 callback url")
	}

	client := oauth1.New(flow.config.ClientID, flow.config.ClientSecret, callbackWithState, oauth1.Endpoints{
		RequestTokenURL: interpolate.Apply(tpl.RequestURL, cc),
		AuthorizeURL:    interpolate.Apply(tpl.AuthorizationURL, cc),
		AccessTokenURL:  interpolate.Apply(tpl.TokenURL.For(models.AuthModeOAuth1), cc),
	})

	reqCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	started := time.Now()
	requestToken, requestSecret, err := client.RequestToken(reqCtx)
	e.recorder.RecordTokenExchange(flow.config.Provider, err == nil, time.Since(started))
	if err != nil {
		return nil, wrapFlowError(CodeTokenError, err,
			"provider refused the oauth1 request token")
	}

	sess.RequestTokenSecret = requestSecret
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, wrapFlowError(CodeUnknownError, err, "failed to persist auth session")
	}
	e.recorder.RecordSessionCreated()

	redirect, err := client.AuthorizationURL(requestToken)
	if err != nil {
		return nil, wrapFlowError(CodeUnknownError, err, "failed to build oauth1 authorize url")
	}

	entry.Info("obtained oauth1 request token", models.ActivityDetails{
		"provider": flow.config.Provider,
	})
	return &InitiationResult{RedirectURL: redirect, SessionID: sess.ID}, nil
}

// initiateClientCredentials completes the whole flow synchronously:
// there is no user redirect, so no session and no callback phase.
func (e *Engine) initiateClientCredentials(
	ctx context.Context,
	flow *flowContext,
	sess *models.AuthSession,
	req InitiationRequest,
	entry *audit.Log,
) (*InitiationResult, *FlowError) {
	tpl := flow.template
	cc := sess.ConnectionConfig

	// The stored secret is never used for client-credentials: the caller
	// must supply its own pair.
	if !flow.config.CredentialsOverridden {
		return nil, newFlowError(CodeInvalidProviderConfig,
			"client credentials flows require caller-supplied client_id and client_secret")
	}

	tokenURLTemplate := tpl.TokenURL.For(models.AuthModeOAuth2CC)
	if err := interpolate.Validate("token_url", tokenURLTemplate, cc); err != nil {
		return nil, wrapFlowError(CodeInvalidConnectionConfig, err,
			"connection config does not satisfy the token url template")
	}

	started := time.Now()
	token, raw, err := e.oauth2.ClientCredentials(ctx, oauth2c.ClientCredentialsRequest{
		TokenURL:     interpolate.Apply(tokenURLTemplate, cc),
		ClientID:     flow.config.ClientID,
		ClientSecret: flow.config.ClientSecret,
		Scopes:       splitScopes(flow.config.Scopes),
		BasicAuth:    tpl.TokenRequestAuthMethod == providers.TokenRequestAuthBasic,
		ExtraParams:  interpolate.ApplyMap(tpl.TokenParams, cc),
	})
	e.recorder.RecordTokenExchange(flow.config.Provider, err == nil, time.Since(started))
	if err != nil {
		return nil, wrapFlowError(CodeTokenError, err, "client credentials exchange failed")
	}

	cred, err := credentials.FromClientCredentials(token, raw, flow.config.ClientID, flow.config.ClientSecret)
	if err != nil {
		return nil, wrapFlowError(CodeUnableToParseToken, err, "token response could not be normalized")
	}

	conn, operation, fe := e.persistConnection(flow, sess, cred, cc, false, entry)
	if fe != nil {
		return nil, fe
	}

	e.hooks.ConnectionCreated(ctx, conn, hooks.CreatedOptions{
		InitiateSync:            true,
		RunPostConnectionScript: true,
	})
	e.notifier.Notify(ctx, notify.Outcome{
		Success:           true,
		ProviderConfigKey: sess.ProviderConfigKey,
		Provider:          sess.Provider,
		ConnectionID:      conn.ConnectionID,
		AuthMode:          string(models.AuthModeOAuth2CC),
		EnvironmentID:     sess.EnvironmentID,
		Operation:         string(operation),
		WSClientID:        req.WSClientID,
	})

	entry.Info("client credentials connection established", models.ActivityDetails{
		"operation": string(operation),
	})
	entry.Success()

	return &InitiationResult{Connection: conn, Operation: operation}, nil
}
