package bootstrap

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/handlers"
	"github.com/NangoHQ/nango-sub004/internal/middleware"
	"github.com/NangoHQ/nango-sub004/internal/services"
	"github.com/NangoHQ/nango-sub004/internal/session"
	"github.com/NangoHQ/nango-sub004/internal/store"
)

// setupRouter configures the gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	sessions session.Store,
	engine *services.Engine,
	redisClient *redis.Client,
) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Only the initiation endpoint is rate limited: the callback is
	// already gated by the consume-once session.
	connectHandlers := make([]gin.HandlerFunc, 0, 2)
	if cfg.RateLimitEnabled {
		limit, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitRPM,
			RedisClient:       redisClient,
		})
		if err != nil {
			return nil, err
		}
		connectHandlers = append(connectHandlers, limit)
	}

	oauthHandler := handlers.NewOAuthHandler(engine, cfg)
	r.GET("/oauth/connect/:providerConfigKey", append(connectHandlers, oauthHandler.Connect)...)
	r.GET("/oauth/callback", oauthHandler.Callback)

	r.GET("/healthz", createHealthCheckHandler(db, sessions))

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r, nil
}

// createHealthCheckHandler reports store and session backend health
func createHealthCheckHandler(db *store.Store, sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
		if err := sessions.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "session store unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
