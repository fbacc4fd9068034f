package mocks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// MockCredentialStore implements domain.CredentialStore for benchmarking
type MockCredentialStore struct {
	mu      sync.RWMutex
	slots   map[domain.CredentialSlot]string
	latency time.Duration
	fail    bool

	// Metrics
	getCount    int64
	setCount    int64
	deleteCount int64
	errorCount  int64
}

// NewMockCredentialStore creates a new mock credential store
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{
		slots: make(map[domain.CredentialSlot]string),
	}
}

// SetLatency simulates a remote store such as Redis
func (m *MockCredentialStore) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// SetFailure makes every subsequent call fail
func (m *MockCredentialStore) SetFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *MockCredentialStore) simulate() error {
	m.mu.RLock()
	latency, fail := m.latency, m.fail
	m.mu.RUnlock()
	if latency > 0 {
		time.Sleep(latency)
	}
	if fail {
		atomic.AddInt64(&m.errorCount, 1)
		return errors.New("mock credential store unavailable")
	}
	return nil
}

// Get implements domain.CredentialStore
func (m *MockCredentialStore) Get(_ context.Context, slot domain.CredentialSlot) (string, bool, error) {
	atomic.AddInt64(&m.getCount, 1)
	if err := m.simulate(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[slot]
	return v, ok, nil
}

// Set implements domain.CredentialStore
func (m *MockCredentialStore) Set(_ context.Context, slot domain.CredentialSlot, value string) error {
	atomic.AddInt64(&m.setCount, 1)
	if err := m.simulate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = value
	return nil
}

// Delete implements domain.CredentialStore
func (m *MockCredentialStore) Delete(_ context.Context, slot domain.CredentialSlot) error {
	atomic.AddInt64(&m.deleteCount, 1)
	if err := m.simulate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}

// GetMetrics returns store metrics
func (m *MockCredentialStore) GetMetrics() (gets, sets, deletes, errs int64) {
	return atomic.LoadInt64(&m.getCount),
		atomic.LoadInt64(&m.setCount),
		atomic.LoadInt64(&m.deleteCount),
		atomic.LoadInt64(&m.errorCount)
}

// Reset resets all metrics
func (m *MockCredentialStore) Reset() {
	atomic.StoreInt64(&m.getCount, 0)
	atomic.StoreInt64(&m.setCount, 0)
	atomic.StoreInt64(&m.deleteCount, 0)
	atomic.StoreInt64(&m.errorCount, 0)
}
