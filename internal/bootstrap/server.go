package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/appleboy/graceful"

	"github.com/NangoHQ/nango-sub004/internal/audit"
	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/hooks"
	"github.com/NangoHQ/nango-sub004/internal/session"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addAuditShutdownJob flushes pending activity messages on shutdown
func addAuditShutdownJob(m *graceful.Manager, svc *audit.Service) {
	m.AddShutdownJob(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := svc.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down activity log service: %v", err)
			return err
		}
		return nil
	})
}

// addHooksDrainJob waits for in-flight lifecycle hooks before exit
func addHooksDrainJob(m *graceful.Manager, d *hooks.Dispatcher) {
	m.AddShutdownJob(func() error {
		d.Wait()
		return nil
	})
}

// addSessionStoreShutdownJob closes the session backend
func addSessionStoreShutdownJob(m *graceful.Manager, s session.Store) {
	m.AddShutdownJob(func() error {
		if err := s.Close(); err != nil {
			log.Printf("Error closing session store: %v", err)
			return err
		}
		return nil
	})
}
