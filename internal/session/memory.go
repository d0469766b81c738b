package session

import (
	"context"
	"sync"
	"time"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

type memoryItem struct {
	session   *models.AuthSession
	expiresAt time.Time
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-process storage.
// Uses lazy expiration (checks expiry on Consume).
// Suitable for single-instance deployments where initiation and callback are
// guaranteed to hit the same process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
}

// NewMemoryStore creates a new memory store instance.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
	}
}

// Create persists the session under its ID.
func (m *MemoryStore) Create(ctx context.Context, s *models.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, exists := m.items[s.ID]; exists && time.Now().Before(item.expiresAt) {
		return ErrSessionExists
	}

	m.items[s.ID] = memoryItem{
		session:   s,
		expiresAt: time.Now().Add(m.ttl),
	}
	return nil
}

// Consume atomically finds and deletes the session. The single mutex makes
// the find-and-delete pair atomic; a concurrent second Consume observes the
// deleted entry and gets ErrSessionNotFound.
func (m *MemoryStore) Consume(ctx context.Context, id string) (*models.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	delete(m.items, id)

	// Lazy expiration check
	if time.Now().After(item.expiresAt) {
		return nil, ErrSessionNotFound
	}

	return item.session, nil
}

// Delete removes a session without reading it.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, id)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Health always succeeds for the memory store.
func (m *MemoryStore) Health(ctx context.Context) error {
	return nil
}
