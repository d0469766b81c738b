package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/NangoHQ/nango-sub004/internal/audit"
	"github.com/NangoHQ/nango-sub004/internal/credentials"
	"github.com/NangoHQ/nango-sub004/internal/hooks"
	"github.com/NangoHQ/nango-sub004/internal/interpolate"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/notify"
	"github.com/NangoHQ/nango-sub004/internal/oauth1"
	"github.com/NangoHQ/nango-sub004/internal/oauth2c"
	"github.com/NangoHQ/nango-sub004/internal/providers"
	"github.com/NangoHQ/nango-sub004/internal/session"
)

// CallbackRequest is what the provider redirect carries back. OAuth2
// flows bring code+state, OAuth1 brings oauth_token+oauth_verifier with
// state smuggled on the callback URL, installations bring
// installation_id and setup_action.
type CallbackRequest struct {
	State          string
	Code           string
	OAuthToken     string
	OAuthVerifier  string
	InstallationID string
	SetupAction    string
	Referer        string
}

// CallbackResult tells the handler what to render. RedirectURL is set
// only for the install no-op case.
type CallbackResult struct {
	Connection  *models.Connection
	Operation   models.UpsertOperation
	Pending     bool
	RedirectURL string
}

// HandleCallback consumes the session named by state and drives the
// flow to completion. Every failure is caught here: the callback is an
// async continuation, nothing may propagate past this boundary.
func (e *Engine) HandleCallback(ctx context.Context, req CallbackRequest) (result *CallbackResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Auth] callback panicked: %v", r)
			err = newFlowError(CodeUnknownError, "internal error: %v", r)
		}
	}()

	// GitHub-style "app installed without state": the provider calls
	// back after an install started on its own marketplace page. There
	// is no flow to complete, just send the user somewhere sensible.
	if req.State == "" && req.InstallationID != "" && req.SetupAction != "" {
		target := req.Referer
		if target == "" {
			target = "/"
		}
		return &CallbackResult{RedirectURL: target}, nil
	}

	if req.State == "" {
		// No session to consume, nothing to notify.
		log.Printf("[Auth] callback without state parameter")
		return nil, newFlowError(CodeInvalidState, "missing state parameter")
	}

	sess, consumeErr := e.sessions.Consume(ctx, req.State)
	if consumeErr != nil {
		e.recorder.RecordSessionConsumed("not_found")
		if errors.Is(consumeErr, session.ErrSessionNotFound) {
			// Stale, replayed, or unknown state. Logged, never retried.
			log.Printf("[Auth] callback with unknown state %q", req.State)
			return nil, newFlowError(CodeInvalidState, "state does not match a pending flow")
		}
		return nil, wrapFlowError(CodeUnknownError, consumeErr, "failed to consume auth session")
	}
	e.recorder.RecordSessionConsumed("consumed")

	entry := e.audit.Resume(sess.ActivityLogID)
	outcome := notify.Outcome{
		ProviderConfigKey: sess.ProviderConfigKey,
		Provider:          sess.Provider,
		ConnectionID:      sess.ConnectionID,
		AuthMode:          string(sess.AuthMode),
		EnvironmentID:     sess.EnvironmentID,
		WSClientID:        sess.WebSocketClientID,
	}

	// From here on the session is gone: every failure does the full
	// triad (activity log failed, client notified, failure hook).
	fail := func(fe *FlowError) (*CallbackResult, error) {
		e.reportFailure(ctx, entry, outcome, fe, true)
		e.recorder.RecordCallback(string(sess.AuthMode), false)
		return nil, fe
	}

	flow, fe := e.resolveFlow(sess.ProviderConfigKey, sess.EnvironmentID)
	if fe != nil {
		if fe.Code == CodeUnknownProviderConfig {
			fe = wrapFlowError(CodeEnvironmentNotFound, fe,
				"environment or provider configuration vanished mid-flow")
		}
		return fail(fe)
	}

	adapter, ok := e.adapters[sess.AuthMode]
	if !ok {
		return fail(newFlowError(CodeUnknownAuthMode,
			"auth mode %q is not supported", sess.AuthMode))
	}
	result, fe = adapter.complete(ctx, flow, sess, req, entry, &outcome)
	if fe != nil {
		return fail(fe)
	}
	e.recorder.RecordCallback(string(sess.AuthMode), true)
	return result, nil
}

// applySessionOverrides moves credential overrides captured at
// initiation from the session config onto the effective config.
func applySessionOverrides(flow *flowContext, sess *models.AuthSession) {
	id := sess.ConnectionConfig[configKeyClientIDOverride]
	secret := sess.ConnectionConfig[configKeyClientSecretOverride]
	if id != "" || secret != "" {
		flow.config.ClientID = id
		flow.config.ClientSecret = secret
		flow.config.CredentialsOverridden = true
	}
}

// completeOAuth2 finishes OAuth2, APP and CUSTOM flows: exchange the
// code, normalize, merge metadata, persist, notify.
func (e *Engine) completeOAuth2(
	ctx context.Context,
	flow *flowContext,
	sess *models.AuthSession,
	req CallbackRequest,
	entry *audit.Log,
	outcome *notify.Outcome,
) (*CallbackResult, *FlowError) {
	tpl := flow.template

	// Provider-initiated update of an existing CUSTOM install: the
	// installation is already confirmed, no token exchange needed.
	if sess.AuthMode == models.AuthModeCustom &&
		req.SetupAction == "update" && req.InstallationID != "" {
		return e.confirmInstallation(ctx, sess, req, entry, outcome)
	}

	if req.Code == "" {
		return nil, newFlowError(CodeInvalidCallbackOAuth2, "callback is missing the authorization code")
	}

	applySessionOverrides(flow, sess)
	cc := sess.ConnectionConfig

	tokenParams := interpolate.ApplyMap(tpl.TokenParams, cc)
	delete(tokenParams, "grant_type") // the exchange sets it explicitly

	codeVerifier := ""
	if !tpl.DisablePKCE {
		codeVerifier = sess.CodeVerifier
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	started := time.Now()
	raw, err := e.oauth2.ExchangeCode(exchangeCtx, oauth2c.ExchangeRequest{
		TokenURL:     interpolate.Apply(tpl.TokenURL.For(sess.AuthMode), cc),
		ClientID:     flow.config.ClientID,
		ClientSecret: flow.config.ClientSecret,
		Code:         req.Code,
		RedirectURI:  sess.CallbackURL,
		CodeVerifier: codeVerifier,
		BasicAuth:    tpl.TokenRequestAuthMethod == providers.TokenRequestAuthBasic,
		ExtraParams:  tokenParams,
	})
	e.recorder.RecordTokenExchange(flow.config.Provider, err == nil, time.Since(started))
	if err != nil {
		if errors.Is(err, oauth2c.ErrTokenResponseUnparsable) {
			return nil, wrapFlowError(CodeUnableToParseToken, err, "token response could not be parsed")
		}
		return nil, wrapFlowError(CodeTokenError, err, "token exchange failed")
	}

	var cred *models.NormalizedCredential
	if sess.AuthMode == models.AuthModeOAuth2 {
		cred, err = credentials.FromOAuth2Response(raw, time.Now())
	} else {
		cred, err = credentials.FromAppResponse(raw, time.Now())
	}
	if err != nil {
		return nil, wrapFlowError(CodeUnableToParseToken, err, "token response could not be normalized")
	}

	derived := map[string]string{}
	if req.InstallationID != "" {
		derived[configKeyInstallationID] = req.InstallationID
	}
	if req.SetupAction != "" {
		derived["setup_action"] = req.SetupAction
	}
	merged := mergeConnectionConfig(cc, derived)
	// Installation confirmation is idempotent and the provider is the
	// source of truth: a fresh installation id always wins.
	if req.InstallationID != "" {
		merged[configKeyInstallationID] = req.InstallationID
	}

	// A CUSTOM install whose installation id is still unknown stays
	// pending until the provider confirms it in a later callback.
	pending := sess.AuthMode == models.AuthModeCustom && merged[configKeyInstallationID] == ""

	conn, operation, fe := e.persistConnection(flow, sess, cred, merged, pending, entry)
	if fe != nil {
		return nil, fe
	}

	e.hooks.ConnectionCreated(ctx, conn, hooks.CreatedOptions{
		InitiateSync:            !pending,
		RunPostConnectionScript: true,
	})

	outcome.Success = true
	outcome.Operation = string(operation)
	outcome.Pending = pending
	e.notifier.Notify(ctx, *outcome)

	entry.Info("connection established", models.ActivityDetails{
		"operation": string(operation),
		"pending":   pending,
	})
	entry.Success()

	return &CallbackResult{Connection: conn, Operation: operation, Pending: pending}, nil
}

// confirmInstallation handles the provider-initiated follow-up that
// turns a pending CUSTOM install into a usable connection.
func (e *Engine) confirmInstallation(
	ctx context.Context,
	sess *models.AuthSession,
	req CallbackRequest,
	entry *audit.Log,
	outcome *notify.Outcome,
) (*CallbackResult, *FlowError) {
	conn, err := e.store.GetConnection(sess.ConnectionID, sess.ProviderConfigKey, sess.EnvironmentID)
	if err != nil {
		return nil, wrapFlowError(CodeInvalidConnection, err,
			"no connection to confirm the installation for")
	}

	if conn.ConnectionConfig == nil {
		conn.ConnectionConfig = models.StringMap{}
	}
	conn.ConnectionConfig[configKeyInstallationID] = req.InstallationID
	conn.Pending = false

	updated, operation, upsertErr := e.store.UpsertConnection(conn)
	if upsertErr != nil {
		return nil, wrapFlowError(CodeUnknownError, upsertErr, "failed to confirm installation")
	}
	e.recorder.RecordConnectionUpserted(string(operation))

	outcome.Success = true
	outcome.Operation = string(operation)
	e.notifier.Notify(ctx, *outcome)

	entry.Info("installation confirmed", models.ActivityDetails{
		configKeyInstallationID: req.InstallationID,
	})
	entry.Success()

	return &CallbackResult{Connection: updated, Operation: operation}, nil
}

// completeOAuth1 finishes the three-legged flow with the access-token
// exchange. Sync initiation is never requested for OAuth1 connections.
func (e *Engine) completeOAuth1(
	ctx context.Context,
	flow *flowContext,
	sess *models.AuthSession,
	req CallbackRequest,
	entry *audit.Log,
	outcome *notify.Outcome,
) (*CallbackResult, *FlowError) {
	if req.OAuthToken == "" || req.OAuthVerifier == "" {
		return nil, newFlowError(CodeInvalidCallbackOAuth1,
			"callback is missing oauth_token or oauth_verifier")
	}

	applySessionOverrides(flow, sess)
	tpl := flow.template
	cc := sess.ConnectionConfig

	client := oauth1.New(flow.config.ClientID, flow.config.ClientSecret, sess.CallbackURL, oauth1.Endpoints{
		RequestTokenURL: interpolate.Apply(tpl.RequestURL, cc),
		AuthorizeURL:    interpolate.Apply(tpl.AuthorizationURL, cc),
		AccessTokenURL:  interpolate.Apply(tpl.TokenURL.For(models.AuthModeOAuth1), cc),
	})

	exchangeCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	started := time.Now()
	token, secret, err := client.AccessToken(exchangeCtx, req.OAuthToken, sess.RequestTokenSecret, req.OAuthVerifier)
	e.recorder.RecordTokenExchange(flow.config.Provider, err == nil, time.Since(started))
	if err != nil {
		return nil, wrapFlowError(CodeTokenError, err, "oauth1 access token exchange failed")
	}

	cred, err := credentials.FromOAuth1Tokens(token, secret, map[string]interface{}{
		"oauth_token":        token,
		"oauth_token_secret": secret,
	})
	if err != nil {
		return nil, wrapFlowError(CodeUnableToParseToken, err, "oauth1 tokens could not be normalized")
	}

	merged := mergeConnectionConfig(cc, nil)

	conn, operation, fe := e.persistConnection(flow, sess, cred, merged, false, entry)
	if fe != nil {
		return nil, fe
	}

	e.hooks.ConnectionCreated(ctx, conn, hooks.CreatedOptions{
		InitiateSync:            false,
		RunPostConnectionScript: true,
	})

	outcome.Success = true
	outcome.Operation = string(operation)
	e.notifier.Notify(ctx, *outcome)

	entry.Info("oauth1 connection established", models.ActivityDetails{
		"operation": string(operation),
	})
	entry.Success()

	return &CallbackResult{Connection: conn, Operation: operation}, nil
}

// persistConnection tags credential overrides, strips the override
// bookkeeping out of the connection config, upserts the connection,
// and links it to an end user when the flow came from a reconnect
// session.
func (e *Engine) persistConnection(
	flow *flowContext,
	sess *models.AuthSession,
	cred *models.NormalizedCredential,
	connectionConfig map[string]string,
	pending bool,
	entry *audit.Log,
) (*models.Connection, models.UpsertOperation, *FlowError) {
	if flow.config.CredentialsOverridden && cred.Type != models.CredentialOAuth2CC {
		cred.ConfigOverride = &models.ConfigOverride{
			ClientID:     flow.config.ClientID,
			ClientSecret: flow.config.ClientSecret,
		}
	}

	stored := models.StringMap{}
	for k, v := range connectionConfig {
		if k == configKeyClientIDOverride || k == configKeyClientSecretOverride {
			continue
		}
		stored[k] = v
	}

	conn := &models.Connection{
		ConnectionID:      sess.ConnectionID,
		ProviderConfigKey: sess.ProviderConfigKey,
		Provider:          flow.config.Provider,
		Credentials:       *cred,
		ConnectionConfig:  stored,
		EnvironmentID:     sess.EnvironmentID,
		Pending:           pending,
	}

	upserted, operation, err := e.store.UpsertConnection(conn)
	if err != nil {
		return nil, "", wrapFlowError(CodeUnknownError, err, "failed to persist connection")
	}
	e.recorder.RecordConnectionUpserted(string(operation))

	if sess.ConnectSessionID != "" {
		cs, _, csErr := e.store.GetConnectSession(sess.ConnectSessionID)
		if csErr != nil {
			entry.Error("failed to resolve connect session for end-user linking",
				models.ActivityDetails{"connect_session_id": sess.ConnectSessionID})
		} else if linkErr := e.store.LinkConnection(cs.EndUserID, upserted); linkErr != nil {
			entry.Error("failed to link connection to end user",
				models.ActivityDetails{"end_user_id": cs.EndUserID})
		} else {
			upserted.EndUserID = &cs.EndUserID
		}
	}

	return upserted, operation, nil
}
