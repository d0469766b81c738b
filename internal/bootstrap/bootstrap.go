// Package bootstrap wires the engine together in phases: configuration
// validation, infrastructure (database, redis, session store, metrics),
// business services, the HTTP layer, and finally the server with
// graceful shutdown.
package bootstrap

import (
	"context"
	"log"
	"net/http"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/NangoHQ/nango-sub004/internal/audit"
	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/hmacauth"
	"github.com/NangoHQ/nango-sub004/internal/hooks"
	"github.com/NangoHQ/nango-sub004/internal/metrics"
	"github.com/NangoHQ/nango-sub004/internal/models"
	"github.com/NangoHQ/nango-sub004/internal/notify"
	"github.com/NangoHQ/nango-sub004/internal/providers"
	"github.com/NangoHQ/nango-sub004/internal/services"
	"github.com/NangoHQ/nango-sub004/internal/session"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB          *store.Store
	RedisClient *redis.Client
	Sessions    session.Store
	Registry    *providers.Registry
	Recorder    metrics.Recorder

	// Services
	AuditService *audit.Service
	Notifier     *notify.Service
	Hooks        *hooks.Dispatcher
	Engine       *services.Engine

	// HTTP
	Router *gin.Engine
	Server *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		return err
	}

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, redis, session store,
// provider catalog, and metrics
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	app.Registry, err = providers.LoadFile(app.Config.ProvidersFile)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d provider templates from %s",
		len(app.Registry.Names()), app.Config.ProvidersFile)

	app.RedisClient = initializeRedisClient(app.Config)

	app.Sessions, err = initializeSessionStore(app.Config, app.RedisClient)
	if err != nil {
		return err
	}

	app.Recorder = metrics.Init(app.Config.MetricsEnabled)
	return nil
}

// initializeBusinessLayer sets up services and the engine
func (app *Application) initializeBusinessLayer() error {
	app.AuditService = audit.NewService(
		app.DB,
		app.Config.AuditEnabled,
		app.Config.AuditBufferSize,
	)

	notifier, err := initializeNotifier(app.Config, app.RedisClient, app.Recorder)
	if err != nil {
		return err
	}
	app.Notifier = notifier

	app.Hooks = hooks.NewDispatcher()
	app.Hooks.Register(newLoggingHooks())

	app.Engine = services.NewEngine(services.EngineOptions{
		Store:           app.DB,
		Sessions:        app.Sessions,
		Registry:        app.Registry,
		HMAC:            hmacauth.New(app.Config.HMACEnabled, app.Config.HMACKey),
		Audit:           app.AuditService,
		Notifier:        app.Notifier,
		Hooks:           app.Hooks,
		Recorder:        app.Recorder,
		CallbackURL:     app.Config.CallbackURL(),
		ProviderTimeout: app.Config.ProviderTimeout,
	})
	return nil
}

// initializeHTTPLayer sets up the router and server
func (app *Application) initializeHTTPLayer() error {
	router, err := setupRouter(app.Config, app.DB, app.Sessions, app.Engine, app.RedisClient)
	if err != nil {
		return err
	}
	app.Router = router
	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addAuditShutdownJob(m, app.AuditService)
	addHooksDrainJob(m, app.Hooks)
	// The session store owns the shared redis client and closes it.
	addSessionStoreShutdownJob(m, app.Sessions)

	<-m.Done()
}

// loggingHooks is the default connection lifecycle subscriber. Real
// deployments register sync schedulers and alerting here.
type loggingHooks struct{}

func newLoggingHooks() *loggingHooks {
	return &loggingHooks{}
}

func (loggingHooks) ConnectionCreated(_ context.Context, conn *models.Connection, opts hooks.CreatedOptions) {
	log.Printf("[Hooks] connection %q created on %q (initiate_sync=%t)",
		conn.ConnectionID, conn.ProviderConfigKey, opts.InitiateSync)
}

func (loggingHooks) ConnectionCreationFailed(_ context.Context, providerConfigKey, connectionID, _ string, cause error) {
	log.Printf("[Hooks] connection %q creation failed on %q: %v",
		connectionID, providerConfigKey, cause)
}
