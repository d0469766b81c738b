package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketPublisherSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, wsChannelPrefix+"client-abc")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewWebSocketPublisher(client)
	require.NoError(t, pub.Publish(ctx, Outcome{
		Success:           true,
		ProviderConfigKey: "github-prod",
		ConnectionID:      "conn-1",
		WSClientID:        "client-abc",
	}))

	select {
	case raw := <-sub.Channel():
		var msg wsMessage
		require.NoError(t, json.Unmarshal([]byte(raw.Payload), &msg))
		assert.Equal(t, "success", msg.MessageType)
		assert.Equal(t, "github-prod", msg.ProviderConfigKey)
		assert.Equal(t, "conn-1", msg.ConnectionID)
		assert.Empty(t, msg.ErrorType)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on ws channel")
	}
}

func TestWebSocketPublisherError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, wsChannelPrefix+"client-err")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewWebSocketPublisher(client)
	require.NoError(t, pub.Publish(ctx, Outcome{
		Success:           false,
		ProviderConfigKey: "github-prod",
		ConnectionID:      "conn-1",
		WSClientID:        "client-err",
		ErrorType:         "token_error",
		ErrorDesc:         "provider rejected the exchange",
	}))

	select {
	case raw := <-sub.Channel():
		var msg wsMessage
		require.NoError(t, json.Unmarshal([]byte(raw.Payload), &msg))
		assert.Equal(t, "error", msg.MessageType)
		assert.Equal(t, "token_error", msg.ErrorType)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on ws channel")
	}
}

func TestWebSocketPublisherNoClientID(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewWebSocketPublisher(client)
	// No listener anywhere, must not error
	require.NoError(t, pub.Publish(context.Background(), Outcome{
		Success:      true,
		ConnectionID: "conn-1",
	}))
}

func TestWebhookPublisherDelivers(t *testing.T) {
	var received atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event webhookEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received.Store(event)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub, err := NewWebhookPublisher(WebhookConfig{
		URL:        srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NotNil(t, pub)

	require.NoError(t, pub.Publish(context.Background(), Outcome{
		Success:           true,
		ProviderConfigKey: "github-prod",
		ConnectionID:      "conn-1",
		AuthMode:          "OAUTH2",
		Operation:         "creation",
	}))

	event, ok := received.Load().(webhookEvent)
	require.True(t, ok)
	assert.Equal(t, "auth", event.Type)
	assert.Equal(t, "conn-1", event.ConnectionID)
	assert.Equal(t, "creation", event.Operation)
}

func TestWebhookPublisherRetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub, err := NewWebhookPublisher(WebhookConfig{
		URL:        srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), Outcome{Success: true, ConnectionID: "conn-1"}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookPublisherDisabledWithoutURL(t *testing.T) {
	pub, err := NewWebhookPublisher(WebhookConfig{})
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestServiceSkipsNilPublishers(t *testing.T) {
	svc := NewService(nil, nil, nil)
	// Must be a no-op, not a panic
	svc.Notify(context.Background(), Outcome{Success: true, ConnectionID: "conn-1"})
}
