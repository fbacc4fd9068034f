package memory

import (
	"context"
	"sync"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// CredentialStore keeps credential slots in process memory. Nothing survives a restart.
type CredentialStore struct {
	mu    sync.RWMutex
	slots map[domain.CredentialSlot]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{slots: make(map[domain.CredentialSlot]string)}
}

func (s *CredentialStore) Get(_ context.Context, slot domain.CredentialSlot) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[slot]
	return v, ok, nil
}

func (s *CredentialStore) Set(_ context.Context, slot domain.CredentialSlot, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = value
	return nil
}

func (s *CredentialStore) Delete(_ context.Context, slot domain.CredentialSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, slot)
	return nil
}

// Len reports how many slots are populated.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
