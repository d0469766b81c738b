package services

import (
	"context"

	"github.com/NangoHQ/nango-sub004/internal/audit"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/notify"
)

// flowAdapter implements one auth family end to end. The initiator and
// dispatcher hold no mode-specific logic beyond selecting the adapter.
type flowAdapter interface {
	initiate(ctx context.Context, flow *flowContext, sess *models.AuthSession,
		req InitiationRequest, entry *audit.Log) (*InitiationResult, *FlowError)
	complete(ctx context.Context, flow *flowContext, sess *models.AuthSession,
		req CallbackRequest, entry *audit.Log, outcome *notify.Outcome) (*CallbackResult, *FlowError)
}

func newFlowAdapters(e *Engine) map[models.AuthMode]flowAdapter {
	return map[models.AuthMode]flowAdapter{
		models.AuthModeOAuth2:   oauth2Flow{e},
		models.AuthModeApp:      installFlow{e},
		models.AuthModeCustom:   installFlow{e},
		models.AuthModeOAuth1:   oauth1Flow{e},
		models.AuthModeOAuth2CC: clientCredentialsFlow{e},
	}
}

// oauth2Flow is the interactive authorization-code family.
type oauth2Flow struct{ e *Engine }

func (a oauth2Flow) initiate(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	req InitiationRequest, entry *audit.Log,
) (*InitiationResult, *FlowError) {
	return a.e.initiateOAuth2(ctx, flow, sess, req, entry)
}

func (a oauth2Flow) complete(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	req CallbackRequest, entry *audit.Log, outcome *notify.Outcome,
) (*CallbackResult, *FlowError) {
	return a.e.completeOAuth2(ctx, flow, sess, req, entry, outcome)
}

// installFlow covers APP and CUSTOM marketplace installations. The
// callback leg shares the OAuth2 completion: installs that carry a code
// exchange it, install-only callbacks confirm the pending connection.
type installFlow struct{ e *Engine }

func (a installFlow) initiate(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	_ InitiationRequest, entry *audit.Log,
) (*InitiationResult, *FlowError) {
	return a.e.initiateInstallation(ctx, flow, sess, entry)
}

func (a installFlow) complete(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	req CallbackRequest, entry *audit.Log, outcome *notify.Outcome,
) (*CallbackResult, *FlowError) {
	return a.e.completeOAuth2(ctx, flow, sess, req, entry, outcome)
}

// oauth1Flow is the three-legged OAuth1 family.
type oauth1Flow struct{ e *Engine }

func (a oauth1Flow) initiate(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	_ InitiationRequest, entry *audit.Log,
) (*InitiationResult, *FlowError) {
	return a.e.initiateOAuth1(ctx, flow, sess, entry)
}

func (a oauth1Flow) complete(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	req CallbackRequest, entry *audit.Log, outcome *notify.Outcome,
) (*CallbackResult, *FlowError) {
	return a.e.completeOAuth1(ctx, flow, sess, req, entry, outcome)
}

// clientCredentialsFlow completes synchronously at initiation; it never
// has a callback leg.
type clientCredentialsFlow struct{ e *Engine }

func (a clientCredentialsFlow) initiate(ctx context.Context, flow *flowContext, sess *models.AuthSession,
	req InitiationRequest, entry *audit.Log,
) (*InitiationResult, *FlowError) {
	return a.e.initiateClientCredentials(ctx, flow, sess, req, entry)
}

func (a clientCredentialsFlow) complete(context.Context, *flowContext, *models.AuthSession,
	CallbackRequest, *audit.Log, *notify.Outcome,
) (*CallbackResult, *FlowError) {
	return nil, newFlowError(CodeUnknownAuthMode, "client credentials flows have no callback leg")
}
