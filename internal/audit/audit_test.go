package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

func setupTestService(t *testing.T, enabled bool) (*Service, *store.Store) {
	t.Helper()

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	svc := NewService(s, enabled, 64)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return svc, s
}

func TestActivityLogLifecycle(t *testing.T) {
	svc, s := setupTestService(t, true)

	entry, err := svc.Start(models.ActivityAuth, "github-prod", "github", "conn-1", "env-1")
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID())

	entry.Info("authorization url built", models.ActivityDetails{"provider": "github"})
	entry.Info("redirecting user", nil)
	entry.Success()

	var row models.ActivityLog
	require.NoError(t, s.DB().First(&row, "id = ?", entry.ID()).Error)
	assert.Equal(t, models.ActivitySuccess, row.State)
	require.NotNil(t, row.EndedAt)

	var messages []models.ActivityMessage
	require.NoError(t, s.DB().Where("activity_log_id = ?", entry.ID()).Order("id").Find(&messages).Error)
	require.Len(t, messages, 2)
	assert.Equal(t, models.LevelInfo, messages[0].Level)
	assert.Equal(t, "authorization url built", messages[0].Message)
}

func TestActivityLogFailure(t *testing.T) {
	svc, s := setupTestService(t, true)

	entry, err := svc.Start(models.ActivityToken, "slack-prod", "slack", "conn-2", "env-1")
	require.NoError(t, err)

	entry.Error("token exchange failed", models.ActivityDetails{"status": 500})
	entry.Failed()

	var row models.ActivityLog
	require.NoError(t, s.DB().First(&row, "id = ?", entry.ID()).Error)
	assert.Equal(t, models.ActivityFailed, row.State)

	var messages []models.ActivityMessage
	require.NoError(t, s.DB().Where("activity_log_id = ?", entry.ID()).Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, models.LevelError, messages[0].Level)
}

func TestResume(t *testing.T) {
	svc, s := setupTestService(t, true)

	entry, err := svc.Start(models.ActivityAuth, "github-prod", "github", "conn-3", "env-1")
	require.NoError(t, err)

	// Simulate the callback leg: only the ID survived the redirect.
	resumed := svc.Resume(entry.ID())
	resumed.Info("callback received", nil)
	resumed.Success()

	var row models.ActivityLog
	require.NoError(t, s.DB().First(&row, "id = ?", entry.ID()).Error)
	assert.Equal(t, models.ActivitySuccess, row.State)

	var messages []models.ActivityMessage
	require.NoError(t, s.DB().Where("activity_log_id = ?", entry.ID()).Find(&messages).Error)
	require.Len(t, messages, 1)
}

func TestDisabledServiceWritesNothing(t *testing.T) {
	svc, s := setupTestService(t, false)

	entry, err := svc.Start(models.ActivityAuth, "github-prod", "github", "conn-4", "env-1")
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID())

	entry.Info("should not persist", nil)
	entry.Success()

	var count int64
	require.NoError(t, s.DB().Model(&models.ActivityLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSensitiveDetailsMasked(t *testing.T) {
	svc, s := setupTestService(t, true)

	entry, err := svc.Start(models.ActivityToken, "github-prod", "github", "conn-5", "env-1")
	require.NoError(t, err)

	entry.Info("token received", models.ActivityDetails{
		"access_token": "ghp_supersecretvalue",
		"provider":     "github",
		"code":         "abcdefgh12345678ijkl",
	})
	entry.Success()

	var messages []models.ActivityMessage
	require.NoError(t, s.DB().Where("activity_log_id = ?", entry.ID()).Find(&messages).Error)
	require.Len(t, messages, 1)

	assert.Equal(t, "***REDACTED***", messages[0].Details["access_token"])
	assert.Equal(t, "github", messages[0].Details["provider"])
	assert.Equal(t, "abcdefgh...ijkl", messages[0].Details["code"])
}

func TestNilLogHandleIsSafe(t *testing.T) {
	var entry *Log
	entry.Info("no-op", nil)
	entry.Error("no-op", nil)
	entry.Success()
	entry.Failed()
	assert.Empty(t, entry.ID())
}
