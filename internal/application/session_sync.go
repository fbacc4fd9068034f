package application

import (
	"context"
	"sync"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/metrics"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// SessionSync keeps client processes that share one credential store in step.
// Local changes are published to peers; a peer's change makes this process
// re-read the store.
type SessionSync struct {
	logger     domain.Logger
	session    *SessionState
	bus        domain.SessionEventBus
	instanceID string

	mu          sync.Mutex
	unsubscribe func()
}

// NewSessionSync returns a SessionSync. A nil bus disables synchronisation.
func NewSessionSync(logger domain.Logger, session *SessionState, bus domain.SessionEventBus, instanceID string) *SessionSync {
	return &SessionSync{
		logger:     logger,
		session:    session,
		bus:        bus,
		instanceID: instanceID,
	}
}

// Start subscribes to peers and begins publishing local changes.
func (s *SessionSync) Start(ctx context.Context) error {
	if s.bus == nil {
		s.logger.Info(ctx, "Session event transport disabled; session changes stay local")
		return nil
	}
	if err := s.bus.SubscribeSessionEvents(ctx, s.handlePeerEvent); err != nil {
		return err
	}

	unsubscribe := s.session.Subscribe(func(change domain.SessionChange) {
		// Re-reads caused by peers are not echoed back.
		if change.Reason == domain.SessionReasonHydrate {
			return
		}
		event := domain.SessionEvent{
			InstanceID: s.instanceID,
			Reason:     change.Reason,
			UserID:     userID(change.Session),
			OccurredAt: time.Now().UTC(),
		}
		// Publishing is I/O and observers run synchronously.
		safego.Execute(ctx, s.logger, "SessionEventPublish", func() {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.bus.PublishSessionEvent(pubCtx, event); err != nil {
				s.logger.Warn(pubCtx, "Failed to publish session event", "reason", string(event.Reason), "error", err.Error())
				return
			}
			metrics.IncrementSessionEvent("published", string(event.Reason))
		})
	})

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

func (s *SessionSync) handlePeerEvent(ctx context.Context, event domain.SessionEvent) error {
	if event.InstanceID == s.instanceID {
		s.logger.Debug(ctx, "Ignoring session event originating from this instance", "reason", string(event.Reason))
		return nil
	}
	metrics.IncrementSessionEvent("received", string(event.Reason))
	s.logger.Info(ctx, "Peer changed the session, re-reading credentials",
		"peer_instance_id", event.InstanceID,
		"reason", string(event.Reason),
	)
	return s.session.Hydrate(ctx)
}

// Stop stops publishing and closes the peer subscription.
func (s *SessionSync) Stop() error {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	if s.bus == nil {
		return nil
	}
	return s.bus.Close()
}
