package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, SessionBackendMemory, cfg.SessionBackend)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.False(t, cfg.HMACEnabled)
	assert.True(t, cfg.AuditEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("AUTH_SESSION_TTL", "5m")
	t.Setenv("HMAC_ENABLED", "true")
	t.Setenv("HMAC_KEY", "secret")
	t.Setenv("WEBHOOK_MAX_RETRIES", "7")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, SessionBackendRedis, cfg.SessionBackend)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.HMACEnabled)
	assert.Equal(t, "secret", cfg.HMACKey)
	assert.Equal(t, 7, cfg.WebhookMaxRetries)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("AUTH_SESSION_TTL", "not-a-duration")
	t.Setenv("WEBHOOK_MAX_RETRIES", "not-a-number")

	cfg := Load()

	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.WebhookMaxRetries)
}

func TestCallbackURL(t *testing.T) {
	cfg := &Config{BaseURL: "https://engine.example.com"}
	assert.Equal(t, "https://engine.example.com/oauth/callback", cfg.CallbackURL())

	// Trailing slash does not double up
	cfg.BaseURL = "https://engine.example.com/"
	assert.Equal(t, "https://engine.example.com/oauth/callback", cfg.CallbackURL())
}

func TestValidate(t *testing.T) {
	valid := &Config{
		SessionBackend: SessionBackendMemory,
		SessionTTL:     time.Minute,
	}
	require.NoError(t, valid.Validate())

	badBackend := &Config{SessionBackend: "etcd", SessionTTL: time.Minute}
	assert.Error(t, badBackend.Validate())

	hmacNoKey := &Config{
		SessionBackend: SessionBackendMemory,
		SessionTTL:     time.Minute,
		HMACEnabled:    true,
	}
	assert.Error(t, hmacNoKey.Validate())

	zeroTTL := &Config{SessionBackend: SessionBackendMemory}
	assert.Error(t, zeroTTL.Validate())
}
