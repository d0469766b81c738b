package notify

import (
	"context"
	"log"

	"github.com/NangoHQ/nango-sub004/internal/metrics"
)

// Outcome is the terminal result of one authorization flow, fanned out
// to every registered publisher. Delivery is best effort: a failed
// publish never fails the flow that produced it.
type Outcome struct {
	Success           bool   `json:"success"`
	ProviderConfigKey string `json:"provider_config_key"`
	Provider          string `json:"provider,omitempty"`
	ConnectionID      string `json:"connection_id"`
	AuthMode          string `json:"auth_mode,omitempty"`
	EnvironmentID     string `json:"environment_id,omitempty"`
	Operation         string `json:"operation,omitempty"` // creation, override, refresh
	Pending           bool   `json:"pending,omitempty"`

	// WSClientID routes the outcome back to the browser session that
	// started the flow. Empty means no session is listening.
	WSClientID string `json:"-"`

	ErrorType string `json:"error_type,omitempty"`
	ErrorDesc string `json:"error_description,omitempty"`
}

// Publisher delivers one outcome over one transport.
type Publisher interface {
	Publish(ctx context.Context, outcome Outcome) error
	Name() string
}

// Service fans an outcome out to all configured publishers.
type Service struct {
	publishers []Publisher
	recorder   metrics.Recorder
}

// NewService creates a notifier over the given publishers. Nil entries
// are skipped so callers can pass optional transports directly.
func NewService(recorder metrics.Recorder, publishers ...Publisher) *Service {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	s := &Service{recorder: recorder}
	for _, p := range publishers {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
	return s
}

// Notify delivers the outcome to every publisher. Errors are logged
// and swallowed: the connection is already persisted (or the failure
// already recorded) by the time notification happens.
func (s *Service) Notify(ctx context.Context, outcome Outcome) {
	for _, p := range s.publishers {
		err := p.Publish(ctx, outcome)
		s.recorder.RecordNotification(p.Name(), err == nil)
		if err != nil {
			log.Printf("[Notify] %s publish failed for connection %q: %v",
				p.Name(), outcome.ConnectionID, err)
		}
	}
}
