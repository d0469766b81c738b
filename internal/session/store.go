// Package session stores in-flight AuthSession records between the
// initiation request and the provider callback. The two requests may be
// served by different processes, so the production backend is Redis; the
// memory backend covers single-instance and test deployments.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

var (
	// ErrSessionNotFound indicates the session id does not exist, has
	// expired, or was already consumed by an earlier callback.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSessionExists indicates a create collided with a live session id.
	ErrSessionExists = errors.New("session: id already exists")
)

// Store holds AuthSessions keyed by their id with at-most-once consumption:
// of two concurrent Consume calls for the same id, exactly one receives the
// session and the other ErrSessionNotFound. This is the sole mechanism
// preventing double-completion of a flow.
type Store interface {
	// Create persists the session under its ID with the store's TTL.
	Create(ctx context.Context, s *models.AuthSession) error

	// Consume atomically finds and deletes the session.
	Consume(ctx context.Context, id string) (*models.AuthSession, error)

	// Delete removes a session without reading it (flow abandoned early).
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error

	// Health checks if the backend is reachable.
	Health(ctx context.Context) error
}

// DefaultTTL bounds abandoned flows. The callback normally arrives within
// seconds to minutes of initiation, so the exact value is a tuning
// parameter, not a correctness requirement.
const DefaultTTL = 10 * time.Minute
