package mocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

var errBusClosed = errors.New("mock session bus closed")

// MockSessionEventBus implements domain.SessionEventBus in process. Every
// subscriber, including the publisher's own, receives each event synchronously.
type MockSessionEventBus struct {
	mu       sync.RWMutex
	handlers []domain.SessionEventHandler
	closed   bool

	// Metrics
	publishCount  int64
	deliveryCount int64
	handlerErrors int64
}

// NewMockSessionEventBus creates a new in-process session event bus
func NewMockSessionEventBus() *MockSessionEventBus {
	return &MockSessionEventBus{}
}

// PublishSessionEvent implements domain.SessionEventPublisher
func (m *MockSessionEventBus) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errBusClosed
	}
	handlers := make([]domain.SessionEventHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	atomic.AddInt64(&m.publishCount, 1)
	for _, h := range handlers {
		atomic.AddInt64(&m.deliveryCount, 1)
		if err := h(ctx, event); err != nil {
			atomic.AddInt64(&m.handlerErrors, 1)
		}
	}
	return nil
}

// SubscribeSessionEvents implements domain.SessionEventSubscriber
func (m *MockSessionEventBus) SubscribeSessionEvents(_ context.Context, handler domain.SessionEventHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errBusClosed
	}
	m.handlers = append(m.handlers, handler)
	return nil
}

// Close implements domain.SessionEventSubscriber
func (m *MockSessionEventBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.handlers = nil
	return nil
}

// GetMetrics returns bus metrics
func (m *MockSessionEventBus) GetMetrics() (published, delivered, handlerErrors int64) {
	return atomic.LoadInt64(&m.publishCount),
		atomic.LoadInt64(&m.deliveryCount),
		atomic.LoadInt64(&m.handlerErrors)
}

// Reset resets all metrics
func (m *MockSessionEventBus) Reset() {
	atomic.StoreInt64(&m.publishCount, 0)
	atomic.StoreInt64(&m.deliveryCount, 0)
	atomic.StoreInt64(&m.handlerErrors, 0)
}
