package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NangoHQ/nango-sub004/internal/config"
	"github.com/NangoHQ/nango-sub004/internal/metrics"
	"github.com/NangoHQ/nango-sub004/internal/notify"
	"github.com/NangoHQ/nango-sub004/internal/session"
)

// redisNeeded reports whether any component requires a redis connection.
func redisNeeded(cfg *config.Config) bool {
	return cfg.SessionBackend == config.SessionBackendRedis
}

// initializeRedisClient creates the shared redis client, or nil when
// nothing is configured to use it. The websocket notifier reuses this
// client when present.
func initializeRedisClient(cfg *config.Config) *redis.Client {
	if !redisNeeded(cfg) {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// initializeSessionStore picks the session backend from configuration
func initializeSessionStore(cfg *config.Config, client *redis.Client) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := session.NewRedisStore(ctx, client, "oauth:session:", cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		log.Println("Session store: redis")
		return s, nil
	default:
		log.Println("Session store: memory")
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}
}

// initializeNotifier assembles the outcome publishers: redis pub/sub
// for waiting browser sessions, webhook forwarding for server-side
// consumers. Both are optional.
func initializeNotifier(cfg *config.Config, client *redis.Client, rec metrics.Recorder) (*notify.Service, error) {
	publishers := make([]notify.Publisher, 0, 2)

	if client != nil {
		publishers = append(publishers, notify.NewWebSocketPublisher(client))
		log.Println("Outcome notifier: websocket publisher enabled")
	}

	webhook, err := notify.NewWebhookPublisher(notify.WebhookConfig{
		URL:           cfg.WebhookURL,
		Secret:        cfg.WebhookSecret,
		Timeout:       cfg.WebhookTimeout,
		MaxRetries:    cfg.WebhookMaxRetries,
		RetryDelay:    cfg.WebhookRetryDelay,
		MaxRetryDelay: cfg.WebhookMaxRetryDelay,
	})
	if err != nil {
		return nil, err
	}
	if webhook != nil {
		publishers = append(publishers, webhook)
		log.Printf("Outcome notifier: webhook forwarding to %s", cfg.WebhookURL)
	}

	return notify.NewService(rec, publishers...), nil
}
