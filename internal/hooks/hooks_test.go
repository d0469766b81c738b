package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

type recordingHandler struct {
	mu       sync.Mutex
	created  []CreatedOptions
	failures []error
}

func (h *recordingHandler) ConnectionCreated(_ context.Context, _ *models.Connection, opts CreatedOptions) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, opts)
}

func (h *recordingHandler) ConnectionCreationFailed(_ context.Context, _, _, _ string, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, cause)
}

type panickingHandler struct{}

func (panickingHandler) ConnectionCreated(context.Context, *models.Connection, CreatedOptions) {
	panic("boom")
}

func (panickingHandler) ConnectionCreationFailed(context.Context, string, string, string, error) {
	panic("boom")
}

func TestConnectionCreatedDispatch(t *testing.T) {
	d := NewDispatcher()
	h := &recordingHandler{}
	d.Register(h)

	conn := &models.Connection{ConnectionID: "conn-1", ProviderConfigKey: "github-prod"}
	d.ConnectionCreated(context.Background(), conn, CreatedOptions{InitiateSync: true, RunPostConnectionScript: true})
	d.Wait()

	require.Len(t, h.created, 1)
	assert.True(t, h.created[0].InitiateSync)
	assert.True(t, h.created[0].RunPostConnectionScript)
}

func TestConnectionCreationFailedDispatch(t *testing.T) {
	d := NewDispatcher()
	h := &recordingHandler{}
	d.Register(h)

	cause := errors.New("token exchange failed")
	d.ConnectionCreationFailed(context.Background(), "github-prod", "conn-1", "env-1", cause)
	d.Wait()

	require.Len(t, h.failures, 1)
	assert.Equal(t, cause, h.failures[0])
}

func TestPanickingHandlerDoesNotAffectOthers(t *testing.T) {
	d := NewDispatcher()
	h := &recordingHandler{}
	d.Register(panickingHandler{})
	d.Register(h)

	d.ConnectionCreated(context.Background(), &models.Connection{ConnectionID: "conn-1"}, CreatedOptions{})
	d.Wait()

	require.Len(t, h.created, 1)
}

func TestRegisterNilHandler(t *testing.T) {
	d := NewDispatcher()
	d.Register(nil)
	d.ConnectionCreated(context.Background(), &models.Connection{}, CreatedOptions{})
	d.Wait()
}
