package mocks

import (
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
)

// MockConfigProvider implements config.Provider for benchmarking
type MockConfigProvider struct {
	config *config.Config
}

// NewMockConfigProvider creates a new mock config provider with benchmark settings
func NewMockConfigProvider() *MockConfigProvider {
	cfg := config.Default()
	cfg.Server.HTTPPort = 0 // Random port
	cfg.Server.InstanceID = "benchmark-instance"
	cfg.API.BaseURL = "http://mock-backend/api"
	cfg.API.TimeoutSeconds = 1
	cfg.Cache.PostsStaleSeconds = 300
	cfg.Cache.CommentsStaleSeconds = 300
	cfg.Cache.GCSeconds = 600
	cfg.Credentials.Backend = "memory"
	cfg.SessionEvents.Transport = "none"
	cfg.Log.Level = "error" // Minimize I/O overhead during benchmarks
	cfg.App.ServiceName = "social-feed-client-benchmark"
	cfg.App.Version = "test"
	cfg.App.ShutdownTimeoutSeconds = 1
	return &MockConfigProvider{config: cfg}
}

// Get implements config.Provider
func (m *MockConfigProvider) Get() *config.Config {
	return m.config
}

// UpdateConfig allows updating config during tests
func (m *MockConfigProvider) UpdateConfig(cfg *config.Config) {
	m.config = cfg
}
