package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// MockTransport implements domain.Transport as an in-process backend. It accepts
// only the most recently issued access token and answers 401 for anything else.
type MockTransport struct {
	mu           sync.RWMutex
	validToken   string
	refreshToken string
	generation   int64
	latency      time.Duration
	body         []byte

	// Metrics
	requestCount      int64
	unauthorizedCount int64
	refreshCount      int64
	failedRefresh     int64
}

// NewMockTransport creates a backend that accepts accessToken and answers every
// other request with body.
func NewMockTransport(accessToken, refreshToken string, body any) *MockTransport {
	encoded, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("mock transport body: %v", err))
	}
	return &MockTransport{
		validToken:   accessToken,
		refreshToken: refreshToken,
		body:         encoded,
	}
}

// SetLatency delays every round trip by d
func (m *MockTransport) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Expire invalidates the current access token so the next request gets a 401
func (m *MockTransport) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.validToken = fmt.Sprintf("expired-%d", m.generation)
}

// RoundTrip implements domain.Transport
func (m *MockTransport) RoundTrip(ctx context.Context, req domain.APIRequest, bearer string) (*domain.APIResponse, error) {
	atomic.AddInt64(&m.requestCount, 1)

	m.mu.RLock()
	latency := m.latency
	m.mu.RUnlock()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, &domain.NetworkError{Op: req.Method + " " + req.Path, Err: ctx.Err(), Timeout: ctx.Err() == context.DeadlineExceeded}
		}
	}

	if req.Path == "/auth/refresh" {
		return m.refresh(req)
	}
	domain.Dispatched(ctx)

	m.mu.RLock()
	valid := m.validToken
	m.mu.RUnlock()
	if bearer != valid {
		atomic.AddInt64(&m.unauthorizedCount, 1)
		return &domain.APIResponse{Status: http.StatusUnauthorized, Body: []byte(`{"message":"Unauthorized"}`)}, nil
	}
	return &domain.APIResponse{Status: http.StatusOK, Body: m.body}, nil
}

func (m *MockTransport) refresh(req domain.APIRequest) (*domain.APIResponse, error) {
	atomic.AddInt64(&m.refreshCount, 1)
	body, ok := req.Body.(domain.RefreshTokenRequest)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok || body.RefreshToken != m.refreshToken {
		atomic.AddInt64(&m.failedRefresh, 1)
		return &domain.APIResponse{Status: http.StatusUnauthorized, Body: []byte(`{"message":"Invalid refresh token"}`)}, nil
	}
	m.generation++
	m.validToken = fmt.Sprintf("access-%d", m.generation)
	m.refreshToken = fmt.Sprintf("refresh-%d", m.generation)
	encoded, _ := json.Marshal(domain.RefreshTokenResponse{AccessToken: m.validToken, RefreshToken: m.refreshToken})
	return &domain.APIResponse{Status: http.StatusOK, Body: encoded}, nil
}

// GetMetrics returns transport metrics
func (m *MockTransport) GetMetrics() (requests, unauthorized, refreshes, failedRefreshes int64) {
	return atomic.LoadInt64(&m.requestCount),
		atomic.LoadInt64(&m.unauthorizedCount),
		atomic.LoadInt64(&m.refreshCount),
		atomic.LoadInt64(&m.failedRefresh)
}

// Reset resets all metrics
func (m *MockTransport) Reset() {
	atomic.StoreInt64(&m.requestCount, 0)
	atomic.StoreInt64(&m.unauthorizedCount, 0)
	atomic.StoreInt64(&m.refreshCount, 0)
	atomic.StoreInt64(&m.failedRefresh, 0)
}
