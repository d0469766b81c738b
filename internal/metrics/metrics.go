package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface used by the engine. A noop implementation
// backs disabled deployments.
type Recorder interface {
	// Authorization flow
	RecordInitiation(authMode string, success bool)
	RecordCallback(authMode string, success bool)
	RecordTokenExchange(provider string, success bool, duration time.Duration)

	// Session store
	RecordSessionCreated()
	RecordSessionConsumed(result string) // consumed, not_found

	// Persistence
	RecordConnectionUpserted(operation string) // creation, override, refresh

	// Notifications
	RecordNotification(kind string, success bool) // websocket, webhook
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	InitiationsTotal      *prometheus.CounterVec
	CallbacksTotal        *prometheus.CounterVec
	TokenExchangesTotal   *prometheus.CounterVec
	TokenExchangeDuration *prometheus.HistogramVec

	SessionsCreatedTotal  prometheus.Counter
	SessionsConsumedTotal *prometheus.CounterVec

	ConnectionsUpsertedTotal *prometheus.CounterVec

	NotificationsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	return &Metrics{
		InitiationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_initiations_total",
				Help: "Total number of authorization initiations",
			},
			[]string{"auth_mode", "result"}, // result: success, error
		),
		CallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_callbacks_total",
				Help: "Total number of provider callbacks processed",
			},
			[]string{"auth_mode", "result"},
		),
		TokenExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_exchanges_total",
				Help: "Total number of token exchanges against providers",
			},
			[]string{"provider", "result"},
		),
		TokenExchangeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_exchange_duration_seconds",
				Help:    "Time taken for provider token exchanges",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		SessionsCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "oauth_auth_sessions_created_total",
				Help: "Total number of auth sessions persisted",
			},
		),
		SessionsConsumedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_auth_sessions_consumed_total",
				Help: "Total number of auth session consume attempts",
			},
			[]string{"result"}, // consumed, not_found
		),
		ConnectionsUpsertedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_connections_upserted_total",
				Help: "Total number of connection upserts",
			},
			[]string{"operation"}, // creation, override, refresh
		),
		NotificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_notifications_total",
				Help: "Total number of outcome notifications sent",
			},
			[]string{"kind", "result"}, // kind: websocket, webhook
		),
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func (m *Metrics) RecordInitiation(authMode string, success bool) {
	m.InitiationsTotal.WithLabelValues(authMode, result(success)).Inc()
}

func (m *Metrics) RecordCallback(authMode string, success bool) {
	m.CallbacksTotal.WithLabelValues(authMode, result(success)).Inc()
}

func (m *Metrics) RecordTokenExchange(provider string, success bool, duration time.Duration) {
	m.TokenExchangesTotal.WithLabelValues(provider, result(success)).Inc()
	m.TokenExchangeDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreatedTotal.Inc()
}

func (m *Metrics) RecordSessionConsumed(res string) {
	m.SessionsConsumedTotal.WithLabelValues(res).Inc()
}

func (m *Metrics) RecordConnectionUpserted(operation string) {
	m.ConnectionsUpsertedTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordNotification(kind string, success bool) {
	m.NotificationsTotal.WithLabelValues(kind, result(success)).Inc()
}
