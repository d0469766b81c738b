package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

func testSession() *models.AuthSession {
	return &models.AuthSession{
		ID:                uuid.New().String(),
		ProviderConfigKey: "github",
		Provider:          "github",
		ConnectionID:      "acct-1",
		AuthMode:          models.AuthModeOAuth2,
		CodeVerifier:      "0123456789abcdef",
		ConnectionConfig:  map[string]string{"subdomain": "acme"},
		CallbackURL:       "https://engine.example.com/oauth/callback",
		EnvironmentID:     "env-1",
		CreatedAt:         time.Now().UTC(),
	}
}

// storeFactories returns every backend under test behind the same interface.
func storeFactories(t *testing.T) map[string]func(ttl time.Duration) Store {
	t.Helper()

	return map[string]func(ttl time.Duration) Store{
		"memory": func(ttl time.Duration) Store {
			return NewMemoryStore(ttl)
		},
		"redis": func(ttl time.Duration) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s, err := NewRedisStore(context.Background(), client, "authsession:", ttl)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_CreateAndConsume(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			ctx := context.Background()

			sess := testSession()
			require.NoError(t, s.Create(ctx, sess))

			got, err := s.Consume(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, sess.ID, got.ID)
			assert.Equal(t, sess.AuthMode, got.AuthMode)
			assert.Equal(t, sess.CodeVerifier, got.CodeVerifier)
			assert.Equal(t, "acme", got.ConnectionConfig["subdomain"])
		})
	}
}

func TestStore_ConsumeIsAtMostOnce(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			ctx := context.Background()

			sess := testSession()
			require.NoError(t, s.Create(ctx, sess))

			_, err := s.Consume(ctx, sess.ID)
			require.NoError(t, err)

			// Second callback with the same state must observe "not found"
			_, err = s.Consume(ctx, sess.ID)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStore_ConsumeUnknownID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)

			_, err := s.Consume(context.Background(), "never-created")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStore_CreateDuplicateID(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			ctx := context.Background()

			sess := testSession()
			require.NoError(t, s.Create(ctx, sess))
			assert.ErrorIs(t, s.Create(ctx, sess), ErrSessionExists)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			ctx := context.Background()

			sess := testSession()
			require.NoError(t, s.Create(ctx, sess))
			require.NoError(t, s.Delete(ctx, sess.ID))

			_, err := s.Consume(ctx, sess.ID)
			assert.ErrorIs(t, err, ErrSessionNotFound)

			// Deleting an absent id is not an error
			assert.NoError(t, s.Delete(ctx, "never-created"))
		})
	}
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	sess := testSession()
	require.NoError(t, s.Create(ctx, sess))

	time.Sleep(25 * time.Millisecond)

	_, err := s.Consume(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_TTLEviction(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedisStore(context.Background(), client, "authsession:", 5*time.Second)
	require.NoError(t, err)

	sess := testSession()
	require.NoError(t, s.Create(context.Background(), sess))

	// miniredis advances TTLs manually
	mr.FastForward(6 * time.Second)

	_, err = s.Consume(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(time.Minute)
			ctx := context.Background()

			sess := testSession()
			require.NoError(t, s.Create(ctx, sess))

			const goroutines = 16
			var wins int64
			var wg sync.WaitGroup
			wg.Add(goroutines)
			start := make(chan struct{})

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					<-start
					if _, err := s.Consume(ctx, sess.ID); err == nil {
						atomic.AddInt64(&wins, 1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int64(1), wins)
		})
	}
}
