package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// SessionEventsAdapter implements domain.SessionEventBus over core NATS subjects.
// Session events are only meaningful to processes running right now, so nothing is
// persisted in JetStream.
type SessionEventsAdapter struct {
	nc      *nats.Conn
	logger  domain.Logger
	subject string

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewSessionEventsAdapter connects to NATS and returns the adapter with its cleanup func.
func NewSessionEventsAdapter(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger, subject string) (*SessionEventsAdapter, func(), error) {
	appFullCfg := cfgProvider.Get()
	natsCfg := appFullCfg.NATS

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsCfg.URL)

	nc, err := nats.Connect(natsCfg.URL,
		nats.Name(fmt.Sprintf("%s-session-events-%s", appFullCfg.App.ServiceName, appFullCfg.Server.InstanceID)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsCfg.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsCfg.URL, err)
	}

	adapter := &SessionEventsAdapter{
		nc:      nc,
		logger:  appLogger,
		subject: subject,
	}
	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		adapter.Drain()
	}
	return adapter, cleanup, nil
}

// PublishSessionEvent publishes one event on the configured subject.
func (a *SessionEventsAdapter) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal SessionEvent: %w", err)
	}
	if err := a.nc.Publish(a.subject, payload); err != nil {
		a.logger.Error(ctx, "Failed to publish session event to NATS", "subject", a.subject, "error", err.Error())
		return fmt.Errorf("failed to publish to NATS subject '%s': %w", a.subject, err)
	}
	a.logger.Debug(ctx, "Published session event", "subject", a.subject, "reason", string(event.Reason))
	return nil
}

// SubscribeSessionEvents registers handler on the subject. Messages are delivered on
// the NATS client goroutine until ctx is done or Close is called.
func (a *SessionEventsAdapter) SubscribeSessionEvents(ctx context.Context, handler domain.SessionEventHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		return errors.New("already subscribed on this adapter instance")
	}

	sub, err := a.nc.Subscribe(a.subject, func(msg *nats.Msg) {
		var event domain.SessionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			a.logger.Error(ctx, "Failed to unmarshal SessionEvent from NATS", "subject", msg.Subject, "error", err.Error())
			return
		}
		if err := safego.Call(ctx, a.logger, "SessionEventHandler", func() error { return handler(ctx, event) }); err != nil {
			a.logger.Error(ctx, "Error in session event handler", "subject", msg.Subject, "reason", string(event.Reason), "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to NATS subject '%s': %w", a.subject, err)
	}
	a.sub = sub
	a.logger.Info(ctx, "Subscribed to session events", "subject", a.subject)

	go func() {
		<-ctx.Done()
		_ = a.Close()
	}()
	return nil
}

// Close unsubscribes. The connection stays open until Drain.
func (a *SessionEventsAdapter) Close() error {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub == nil || !sub.IsValid() {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from NATS subject '%s': %w", a.subject, err)
	}
	return nil
}

// Drain drains and closes the NATS connection.
func (a *SessionEventsAdapter) Drain() {
	if a.nc == nil || a.nc.IsClosed() {
		return
	}
	if err := a.nc.Drain(); err != nil {
		a.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
	}
}

// NatsConn returns the underlying NATS connection, used by readiness checks.
func (a *SessionEventsAdapter) NatsConn() *nats.Conn {
	return a.nc
}
