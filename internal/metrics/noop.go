package metrics

import "time"

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NoopMetrics is a no-op implementation used when metrics are disabled.
type NoopMetrics struct{}

// NewNoopMetrics creates a new NoopMetrics instance
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordInitiation(authMode string, success bool) {}

func (n *NoopMetrics) RecordCallback(authMode string, success bool) {}

func (n *NoopMetrics) RecordTokenExchange(provider string, success bool, duration time.Duration) {}

func (n *NoopMetrics) RecordSessionCreated() {}

func (n *NoopMetrics) RecordSessionConsumed(result string) {}

func (n *NoopMetrics) RecordConnectionUpserted(operation string) {}

func (n *NoopMetrics) RecordNotification(kind string, success bool) {}
