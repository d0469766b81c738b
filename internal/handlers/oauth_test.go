package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/providers"
	"github.com/NangoHQ/nango-sub004/internal/services"
	"github.com/NangoHQ/nango-sub004/internal/session"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

const testCatalog = `
github:
  auth_mode: OAUTH2
  authorization_url: https://github.example.test/login/oauth/authorize
  token_url: https://github.example.test/login/oauth/access_token
`

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, st.CreateProviderConfig(&models.ProviderConfig{
		UniqueKey:         "github-prod",
		Provider:          "github",
		OAuthClientID:     "cid",
		OAuthClientSecret: "sec",
		EnvironmentID:     "dev",
	}))

	registry, err := providers.Load([]byte(testCatalog))
	require.NoError(t, err)

	sessions := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = sessions.Close() })

	engine := services.NewEngine(services.EngineOptions{
		Store:       st,
		Sessions:    sessions,
		Registry:    registry,
		CallbackURL: "https://app.example.test/oauth/callback",
	})

	cfg := &config.Config{EnvironmentID: "dev"}
	h := NewOAuthHandler(engine, cfg)

	r := gin.New()
	r.GET("/oauth/connect/:providerConfigKey", h.Connect)
	r.GET("/oauth/callback", h.Callback)
	return r
}

func do(r *gin.Engine, target string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestConnectRedirects(t *testing.T) {
	r := setupRouter(t)

	w := do(r, "/oauth/connect/github-prod?connection_id=conn-1", nil)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.example.test", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("state"))
}

func TestConnectUnknownProvider(t *testing.T) {
	r := setupRouter(t)

	w := do(r, "/oauth/connect/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_provider_config")
}

func TestConnectMalformedParams(t *testing.T) {
	r := setupRouter(t)

	w := do(r, "/oauth/connect/github-prod?params=not-json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackMissingState(t *testing.T) {
	r := setupRouter(t)

	w := do(r, "/oauth/callback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_state")
}

func TestCallbackInstallNoOpRedirect(t *testing.T) {
	r := setupRouter(t)

	w := do(r, "/oauth/callback?installation_id=42&setup_action=install", map[string]string{
		"Referer": "https://app.example.test/integrations",
	})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.example.test/integrations", w.Header().Get("Location"))
}
