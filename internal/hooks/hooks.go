package hooks

import (
	"context"
	"log"
	"sync"

	"github.com/NangoHQ/nango-sub004/internal/models"
)

// CreatedOptions controls which follow-up work runs after a connection
// is established. Refreshes of an existing connection skip the initial
// sync; brand new connections get the full treatment.
type CreatedOptions struct {
	InitiateSync            bool
	RunPostConnectionScript bool
}

// Handler receives connection lifecycle events. Implementations must
// tolerate being called concurrently.
type Handler interface {
	ConnectionCreated(ctx context.Context, conn *models.Connection, opts CreatedOptions)
	ConnectionCreationFailed(ctx context.Context, providerConfigKey, connectionID, environmentID string, cause error)
}

// Dispatcher fans lifecycle events out to registered handlers on
// separate goroutines. Events are fire and forget: a slow or panicking
// handler never delays or fails the authorization flow that emitted
// the event.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a handler. Safe to call concurrently with dispatch.
func (d *Dispatcher) Register(h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// ConnectionCreated notifies all handlers that a connection was
// established. The copy of conn passed in must not be mutated by the
// caller afterwards.
func (d *Dispatcher) ConnectionCreated(ctx context.Context, conn *models.Connection, opts CreatedOptions) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.wg.Add(1)
		go func(h Handler) {
			defer d.wg.Done()
			defer recoverHandler("ConnectionCreated")
			h.ConnectionCreated(ctx, conn, opts)
		}(h)
	}
}

// ConnectionCreationFailed notifies all handlers that a flow ended in
// failure before a connection could be persisted.
func (d *Dispatcher) ConnectionCreationFailed(ctx context.Context, providerConfigKey, connectionID, environmentID string, cause error) {
	d.mu.RLock()
	handlers := make([]Handler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.wg.Add(1)
		go func(h Handler) {
			defer d.wg.Done()
			defer recoverHandler("ConnectionCreationFailed")
			h.ConnectionCreationFailed(ctx, providerConfigKey, connectionID, environmentID, cause)
		}(h)
	}
}

// Wait blocks until all in-flight handler invocations finish. Used by
// the graceful shutdown path and by tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func recoverHandler(event string) {
	if r := recover(); r != nil {
		log.Printf("[Hooks] %s handler panicked: %v", event, r)
	}
}
