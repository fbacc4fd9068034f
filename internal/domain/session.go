package domain

import (
	"context"
	"time"
)

// SessionEvent is broadcast to other client processes sharing the same credential store
// so they can re-hydrate or drop their cached data.
type SessionEvent struct {
	InstanceID string              `json:"instance_id"`
	Reason     SessionChangeReason `json:"reason"`
	UserID     string              `json:"user_id,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// SessionEventPublisher publishes session events to peers.
type SessionEventPublisher interface {
	PublishSessionEvent(ctx context.Context, event SessionEvent) error
}

// SessionEventHandler is called for every event received from a peer.
type SessionEventHandler func(ctx context.Context, event SessionEvent) error

// SessionEventSubscriber delivers peer events until ctx is done or Close is called.
type SessionEventSubscriber interface {
	SubscribeSessionEvents(ctx context.Context, handler SessionEventHandler) error
	Close() error
}

// SessionEventBus is implemented by every session event transport.
type SessionEventBus interface {
	SessionEventPublisher
	SessionEventSubscriber
}
