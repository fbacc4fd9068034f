package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// SessionState owns the in-memory session and mirrors every mutation into the
// credential store. Mutations are serialized; persistence happens inside the
// critical section so the store always follows memory order.
type SessionState struct {
	logger domain.Logger
	store  domain.CredentialStore

	mu      sync.Mutex
	session domain.Session
	seq     uint64 // mutation ticket, guarded by mu

	// Observers are run strictly in ticket order.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notified   uint64

	obsMu     sync.Mutex
	observers []sessionObserver
	nextObsID int
}

type sessionObserver struct {
	id int
	fn func(domain.SessionChange)
}

// NewSessionState creates an empty, logged-out session backed by store.
func NewSessionState(store domain.CredentialStore, logger domain.Logger) *SessionState {
	s := &SessionState{
		logger: logger,
		store:  store,
	}
	s.notifyCond = sync.NewCond(&s.notifyMu)
	return s
}

// Snapshot returns a copy of the current session.
func (s *SessionState) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.session)
}

// Subscribe registers fn for every observable change. Observers run after the
// mutation, outside the state lock, in registration order. They must not mutate
// the session synchronously.
func (s *SessionState) Subscribe(fn func(domain.SessionChange)) (unsubscribe func()) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextObsID++
	id := s.nextObsID
	s.observers = append(s.observers, sessionObserver{id: id, fn: fn})
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// SetAuth replaces user and both tokens. An empty refresh token clears the slot.
func (s *SessionState) SetAuth(ctx context.Context, user domain.User, accessToken, refreshToken string) error {
	s.mu.Lock()
	s.session = domain.Session{User: &user, AccessToken: accessToken, RefreshToken: refreshToken}
	err := s.persistAll(ctx)
	s.commit(domain.SessionReasonLogin)
	return err
}

// SetUser replaces the user. nil clears it, which also ends authentication.
func (s *SessionState) SetUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	if user != nil {
		u := *user
		s.session.User = &u
	} else {
		s.session.User = nil
	}
	err := s.persistUser(ctx)
	s.commit(domain.SessionReasonUserUpdated)
	return err
}

// SetAccessToken replaces the access token. Empty clears it.
func (s *SessionState) SetAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.session.AccessToken = token
	err := s.persistToken(ctx, domain.SlotAccessToken, token)
	s.commit(domain.SessionReasonTokenRotated)
	return err
}

// SetRefreshToken replaces the refresh token. Empty clears it.
func (s *SessionState) SetRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.session.RefreshToken = token
	err := s.persistToken(ctx, domain.SlotRefreshToken, token)
	s.commit(domain.SessionReasonTokenRotated)
	return err
}

// RotateTokens stores the result of a refresh exchange with a single notification.
// An empty refreshToken keeps the current one.
func (s *SessionState) RotateTokens(ctx context.Context, accessToken, refreshToken string) error {
	s.mu.Lock()
	err := s.rotateLocked(ctx, accessToken, refreshToken)
	s.commit(domain.SessionReasonTokenRotated)
	return err
}

// rotateIfCurrent rotates only while the session still holds usedRefresh. It
// reports false when a logout or a new login happened during the exchange.
func (s *SessionState) rotateIfCurrent(ctx context.Context, usedRefresh, accessToken, refreshToken string) (bool, error) {
	s.mu.Lock()
	if s.session.RefreshToken != usedRefresh {
		s.mu.Unlock()
		return false, nil
	}
	err := s.rotateLocked(ctx, accessToken, refreshToken)
	s.commit(domain.SessionReasonTokenRotated)
	return true, err
}

func (s *SessionState) rotateLocked(ctx context.Context, accessToken, refreshToken string) error {
	s.session.AccessToken = accessToken
	if refreshToken != "" {
		s.session.RefreshToken = refreshToken
	}
	return errors.Join(
		s.persistToken(ctx, domain.SlotAccessToken, s.session.AccessToken),
		s.persistToken(ctx, domain.SlotRefreshToken, s.session.RefreshToken),
	)
}

// Logout clears memory and every persisted slot. Observers are only notified
// when something was actually cleared.
func (s *SessionState) Logout(ctx context.Context) error {
	s.mu.Lock()
	wasEmpty := s.session.User == nil && s.session.AccessToken == "" && s.session.RefreshToken == ""
	s.session = domain.Session{}
	err := s.purge(ctx)
	if wasEmpty {
		s.mu.Unlock()
		return err
	}
	s.commit(domain.SessionReasonLogout)
	return err
}

// Hydrate restores the session from the credential store. Anything short of a
// parsable user plus an access token leaves the session logged out. Corrupt data
// is purged and reported only in the log; store I/O failures are returned.
func (s *SessionState) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	restored, err := s.load(ctx)
	switch {
	case errors.Is(err, domain.ErrSessionCorrupt):
		s.logger.Warn(ctx, "Persisted session is corrupt, purging", "error", err.Error())
		if purgeErr := s.purge(ctx); purgeErr != nil {
			s.logger.Error(ctx, "Failed to purge corrupt session", "error", purgeErr.Error())
		}
		s.session = domain.Session{}
		err = nil
	case err != nil:
		s.logger.Error(ctx, "Failed to read persisted session", "error", err.Error())
		s.session = domain.Session{}
	default:
		s.session = restored
	}
	s.commit(domain.SessionReasonHydrate)
	if err != nil {
		return fmt.Errorf("hydrating session: %w", err)
	}
	return nil
}

func (s *SessionState) load(ctx context.Context) (domain.Session, error) {
	userJSON, hasUser, err := s.store.Get(ctx, domain.SlotUser)
	if err != nil {
		return domain.Session{}, err
	}
	access, hasAccess, err := s.store.Get(ctx, domain.SlotAccessToken)
	if err != nil {
		return domain.Session{}, err
	}
	refresh, _, err := s.store.Get(ctx, domain.SlotRefreshToken)
	if err != nil {
		return domain.Session{}, err
	}
	if !hasUser || !hasAccess || access == "" {
		return domain.Session{}, nil
	}

	var user domain.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return domain.Session{}, fmt.Errorf("%w: user: %v", domain.ErrSessionCorrupt, err)
	}
	if user.ID == "" {
		return domain.Session{}, fmt.Errorf("%w: user record has no id", domain.ErrSessionCorrupt)
	}
	return domain.Session{User: &user, AccessToken: access, RefreshToken: refresh}, nil
}

// commit must be called with mu held. It releases mu and notifies observers
// once every earlier mutation has been delivered.
func (s *SessionState) commit(reason domain.SessionChangeReason) {
	s.seq++
	ticket := s.seq
	change := domain.SessionChange{Session: copySession(s.session), Reason: reason}
	s.mu.Unlock()

	s.notifyMu.Lock()
	for s.notified != ticket-1 {
		s.notifyCond.Wait()
	}
	s.notifyMu.Unlock()

	defer func() {
		s.notifyMu.Lock()
		s.notified = ticket
		s.notifyCond.Broadcast()
		s.notifyMu.Unlock()
	}()

	s.obsMu.Lock()
	observers := make([]sessionObserver, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.fn(change)
	}
}

func (s *SessionState) persistAll(ctx context.Context) error {
	return errors.Join(
		s.persistUser(ctx),
		s.persistToken(ctx, domain.SlotAccessToken, s.session.AccessToken),
		s.persistToken(ctx, domain.SlotRefreshToken, s.session.RefreshToken),
	)
}

func (s *SessionState) persistUser(ctx context.Context) error {
	if s.session.User == nil {
		return s.deleteSlot(ctx, domain.SlotUser)
	}
	encoded, err := json.Marshal(s.session.User)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := s.store.Set(ctx, domain.SlotUser, string(encoded)); err != nil {
		s.logger.Error(ctx, "Failed to persist user", "error", err.Error())
		return fmt.Errorf("persisting %s: %w", domain.SlotUser, err)
	}
	return nil
}

func (s *SessionState) persistToken(ctx context.Context, slot domain.CredentialSlot, token string) error {
	if token == "" {
		return s.deleteSlot(ctx, slot)
	}
	if err := s.store.Set(ctx, slot, token); err != nil {
		s.logger.Error(ctx, "Failed to persist credential", "slot", string(slot), "error", err.Error())
		return fmt.Errorf("persisting %s: %w", slot, err)
	}
	return nil
}

func (s *SessionState) deleteSlot(ctx context.Context, slot domain.CredentialSlot) error {
	if err := s.store.Delete(ctx, slot); err != nil {
		s.logger.Error(ctx, "Failed to delete credential", "slot", string(slot), "error", err.Error())
		return fmt.Errorf("deleting %s: %w", slot, err)
	}
	return nil
}

func (s *SessionState) purge(ctx context.Context) error {
	var errs []error
	for _, slot := range domain.AllCredentialSlots {
		errs = append(errs, s.deleteSlot(ctx, slot))
	}
	return errors.Join(errs...)
}

func copySession(in domain.Session) domain.Session {
	out := in
	if in.User != nil {
		u := *in.User
		out.User = &u
	}
	return out
}
