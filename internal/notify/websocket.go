package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const wsChannelPrefix = "oauth:ws:"

// wsMessage is the frame published to the browser session channel. The
// frontend listening on the socket resolves or rejects its pending
// authorization promise on receipt.
type wsMessage struct {
	MessageType       string `json:"message_type"` // success, error
	ProviderConfigKey string `json:"provider_config_key"`
	ConnectionID      string `json:"connection_id"`
	IsPending         bool   `json:"is_pending,omitempty"`
	ErrorType         string `json:"error_type,omitempty"`
	ErrorDesc         string `json:"error_description,omitempty"`
}

// WebSocketPublisher pushes outcomes to the websocket gateway over
// redis pub/sub, keyed by the ws_client_id carried through the flow.
type WebSocketPublisher struct {
	client *redis.Client
}

var _ Publisher = (*WebSocketPublisher)(nil)

// NewWebSocketPublisher creates a publisher over an existing redis client.
func NewWebSocketPublisher(client *redis.Client) *WebSocketPublisher {
	return &WebSocketPublisher{client: client}
}

func (p *WebSocketPublisher) Name() string {
	return "websocket"
}

// Publish sends the outcome to the session channel. An outcome with no
// WSClientID has nobody listening and is silently skipped.
func (p *WebSocketPublisher) Publish(ctx context.Context, outcome Outcome) error {
	if outcome.WSClientID == "" {
		return nil
	}

	msg := wsMessage{
		MessageType:       "success",
		ProviderConfigKey: outcome.ProviderConfigKey,
		ConnectionID:      outcome.ConnectionID,
		IsPending:         outcome.Pending,
	}
	if !outcome.Success {
		msg.MessageType = "error"
		msg.ErrorType = outcome.ErrorType
		msg.ErrorDesc = outcome.ErrorDesc
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal ws message: %w", err)
	}

	if err := p.client.Publish(ctx, wsChannelPrefix+outcome.WSClientID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish ws message: %w", err)
	}
	return nil
}
