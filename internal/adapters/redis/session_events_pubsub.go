package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// SessionEventsPubSubAdapter implements domain.SessionEventBus with Redis pub/sub.
type SessionEventsPubSubAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
	channel     string

	mu  sync.Mutex
	sub *redis.PubSub // Holds the active subscription
}

// NewSessionEventsPubSubAdapter creates a new adapter publishing on channel.
func NewSessionEventsPubSubAdapter(redisClient *redis.Client, logger domain.Logger, channel string) *SessionEventsPubSubAdapter {
	return &SessionEventsPubSubAdapter{
		redisClient: redisClient,
		logger:      logger,
		channel:     channel,
	}
}

// PublishSessionEvent publishes a message to the configured Redis channel.
func (a *SessionEventsPubSubAdapter) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	payloadBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionEvent: %w", err)
	}

	if err := a.redisClient.Publish(ctx, a.channel, string(payloadBytes)).Err(); err != nil {
		a.logger.Error(ctx, "Failed to publish session event to Redis", "channel", a.channel, "error", err.Error())
		return fmt.Errorf("failed to publish to Redis channel '%s': %w", a.channel, err)
	}
	a.logger.Debug(ctx, "Published session event", "channel", a.channel, "reason", string(event.Reason))
	return nil
}

// SubscribeSessionEvents confirms the subscription, then delivers events from a
// goroutine until ctx is done or Close is called.
func (a *SessionEventsPubSubAdapter) SubscribeSessionEvents(ctx context.Context, handler domain.SessionEventHandler) error {
	a.mu.Lock()
	if a.sub != nil {
		a.mu.Unlock()
		return errors.New("already subscribed on this adapter instance")
	}
	sub := a.redisClient.Subscribe(ctx, a.channel)
	a.sub = sub
	a.mu.Unlock()

	// Receive returns the subscription confirmation first.
	if _, err := sub.Receive(ctx); err != nil {
		a.logger.Error(ctx, "Failed to confirm Redis subscription", "channel", a.channel, "error", err.Error())
		_ = a.Close()
		return fmt.Errorf("failed to subscribe to channel '%s': %w", a.channel, err)
	}
	a.logger.Info(ctx, "Subscribed to session events", "channel", a.channel)

	ch := sub.Channel()
	go func() {
		defer a.logger.Info(context.Background(), "Session event subscription ended", "channel", a.channel)
		for {
			select {
			case <-ctx.Done():
				_ = a.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					a.logger.Error(ctx, "Failed to unmarshal SessionEvent from pub/sub",
						"channel", msg.Channel,
						"payload", msg.Payload,
						"error", err.Error(),
					)
					continue
				}
				if err := safego.Call(ctx, a.logger, "SessionEventHandler", func() error { return handler(ctx, event) }); err != nil {
					a.logger.Error(ctx, "Error in session event handler",
						"channel", msg.Channel,
						"reason", string(event.Reason),
						"error", err.Error(),
					)
				}
			}
		}
	}()

	return nil
}

// Close closes the subscription. Closing twice is a no-op.
func (a *SessionEventsPubSubAdapter) Close() error {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub == nil {
		return nil
	}
	if err := sub.Close(); err != nil {
		return fmt.Errorf("error closing Redis pub/sub: %w", err)
	}
	return nil
}
