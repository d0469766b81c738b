package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	retry "github.com/appleboy/go-httpretry"
)

// WebhookConfig holds the settings for the outbound webhook forwarder.
type WebhookConfig struct {
	URL           string
	Secret        string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// webhookEvent is the payload POSTed to the configured endpoint.
type webhookEvent struct {
	Type string `json:"type"` // always "auth"
	Outcome
}

// WebhookPublisher forwards outcomes to an external endpoint with
// retries and exponential backoff. When a secret is configured the
// request carries an HMAC-SHA256 signature header so receivers can
// verify origin.
type WebhookPublisher struct {
	url         string
	retryClient *retry.Client
}

var _ Publisher = (*WebhookPublisher)(nil)

// NewWebhookPublisher creates the forwarder. Returns nil when no URL is
// configured so callers can pass the result straight to NewService.
func NewWebhookPublisher(cfg WebhookConfig) (*WebhookPublisher, error) {
	if cfg.URL == "" {
		return nil, nil //nolint:nilnil // absent URL disables the transport
	}

	authMode := "none"
	if cfg.Secret != "" {
		authMode = "hmac"
	}

	client, err := httpclient.NewAuthClient(
		authMode,
		cfg.Secret,
		httpclient.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook client: %w", err)
	}

	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(client),
		retry.WithMaxRetries(cfg.MaxRetries),
		retry.WithInitialRetryDelay(cfg.RetryDelay),
		retry.WithMaxRetryDelay(cfg.MaxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook retry client: %w", err)
	}

	return &WebhookPublisher{url: cfg.URL, retryClient: retryClient}, nil
}

func (p *WebhookPublisher) Name() string {
	return "webhook"
}

func (p *WebhookPublisher) Publish(ctx context.Context, outcome Outcome) error {
	event := webhookEvent{Type: "auth", Outcome: outcome}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	resp, err := p.retryClient.Post(
		ctx,
		p.url,
		retry.WithBody("application/json", bytes.NewBuffer(jsonData)),
	)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook endpoint returned HTTP %d: %s", resp.StatusCode, body)
	}
	return nil
}
