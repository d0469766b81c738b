package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/services"
)

// OAuthHandler owns the engine's two public endpoints: authorization
// initiation and the provider callback. All state travels in the query
// string and the session store; there are no request bodies.
type OAuthHandler struct {
	engine *services.Engine
	config *config.Config
}

func NewOAuthHandler(engine *services.Engine, cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{engine: engine, config: cfg}
}

// Connect starts an authorization flow (GET /oauth/connect/:providerConfigKey).
// Interactive modes answer with a 302 to the provider; client-credentials
// flows complete synchronously and answer with the created connection.
func (h *OAuthHandler) Connect(c *gin.Context) {
	req := services.InitiationRequest{
		ProviderConfigKey: c.Param("providerConfigKey"),
		ConnectionID:      c.Query("connection_id"),
		EnvironmentID:     h.config.EnvironmentID,
		WSClientID:        c.Query("ws_client_id"),
		UserScope:         c.Query("user_scope"),
		HMACDigest:        c.Query("hmac"),
		ConnectSessionID:  c.Query("connect_session_id"),
	}

	var err error
	if req.Params, err = parseStringMap(c.Query("params")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "params must be a JSON object of strings"})
		return
	}
	if req.AuthorizationParams, err = parseStringMap(c.Query("authorization_params")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization_params must be a JSON object of strings"})
		return
	}
	if raw := c.Query("credentials"); raw != "" {
		var override models.ConfigOverride
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "credentials must be a JSON object"})
			return
		}
		req.CredentialOverrides = &override
	}

	result, err := h.engine.Initiate(c.Request.Context(), req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if result.RedirectURL != "" {
		c.Redirect(http.StatusFound, result.RedirectURL)
		return
	}

	// Client-credentials flows complete without a redirect.
	c.JSON(http.StatusOK, gin.H{
		"connection_id":       result.Connection.ConnectionID,
		"provider_config_key": result.Connection.ProviderConfigKey,
		"operation":           result.Operation,
	})
}

// Callback receives the provider redirect (GET /oauth/callback).
func (h *OAuthHandler) Callback(c *gin.Context) {
	req := services.CallbackRequest{
		State:          c.Query("state"),
		Code:           c.Query("code"),
		OAuthToken:     c.Query("oauth_token"),
		OAuthVerifier:  c.Query("oauth_verifier"),
		InstallationID: c.Query("installation_id"),
		SetupAction:    c.Query("setup_action"),
		Referer:        c.GetHeader("Referer"),
	}

	result, err := h.engine.HandleCallback(c.Request.Context(), req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if result.RedirectURL != "" {
		c.Redirect(http.StatusFound, result.RedirectURL)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connection_id":       result.Connection.ConnectionID,
		"provider_config_key": result.Connection.ProviderConfigKey,
		"operation":           result.Operation,
		"pending":             result.Pending,
	})
}

// renderError maps a flow error onto an HTTP status. The waiting client
// has already been notified over its own channel; this response is for
// the browser tab sitting on the redirect.
func (h *OAuthHandler) renderError(c *gin.Context, err error) {
	var fe *services.FlowError
	if !errors.As(err, &fe) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusBadRequest
	switch fe.Code {
	case services.CodeUnknownProviderConfig, services.CodeUnknownProviderTemplate:
		status = http.StatusNotFound
	case services.CodeMissingHMAC, services.CodeInvalidHMAC:
		status = http.StatusUnauthorized
	case services.CodeTokenError:
		status = http.StatusBadGateway
	case services.CodeUnknownError, services.CodeEnvironmentNotFound:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"error":             fe.Code,
		"error_description": fe.Message,
	})
}

// parseStringMap decodes an optional JSON-object query parameter.
func parseStringMap(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
