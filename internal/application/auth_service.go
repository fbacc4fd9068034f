package application

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// AuthService runs the login, signup and logout flows against the backend and
// keeps SessionState and the response cache in step with them.
type AuthService struct {
	logger     domain.Logger
	config     config.Provider
	dispatcher *Dispatcher
	session    *SessionState
	cache      *ResponseCache
}

// NewAuthService creates a new AuthService.
func NewAuthService(logger domain.Logger, config config.Provider, dispatcher *Dispatcher, session *SessionState, cache *ResponseCache) *AuthService {
	if logger == nil {
		panic("logger is nil in NewAuthService")
	}
	if dispatcher == nil || session == nil || cache == nil {
		panic("dispatcher, session and cache are required in NewAuthService")
	}
	return &AuthService{
		logger:     logger,
		config:     config,
		dispatcher: dispatcher,
		session:    session,
		cache:      cache,
	}
}

// Login exchanges credentials for a session.
func (s *AuthService) Login(ctx context.Context, creds domain.LoginCredentials) (*domain.User, error) {
	if err := domain.Validate(creds); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, "/auth/login", creds)
}

// Signup creates an account and starts a session for it.
func (s *AuthService) Signup(ctx context.Context, creds domain.SignupCredentials) (*domain.User, error) {
	if err := domain.Validate(creds); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, "/auth/signup", creds)
}

func (s *AuthService) authenticate(ctx context.Context, path string, body any) (*domain.User, error) {
	var resp domain.AuthResponse
	err := s.dispatcher.Do(ctx, domain.APIRequest{
		Method:    http.MethodPost,
		Path:      path,
		Body:      body,
		Anonymous: true,
	}, &resp)
	if err != nil {
		s.logger.Info(ctx, "Authentication rejected", "path", path, "error", err.Error())
		return nil, err
	}

	if err := s.session.SetAuth(ctx, resp.User, resp.AccessToken, resp.RefreshToken); err != nil {
		// The in-memory session is live; only the durable mirror failed.
		s.logger.Error(ctx, "Session established but could not be persisted", "user_id", resp.User.ID, "error", err.Error())
	}
	s.cache.Invalidate(domain.CurrentUserKey())
	s.logger.Info(ctx, "Session established", "user_id", resp.User.ID, "path", path)
	user := resp.User
	return &user, nil
}

// Me returns the current user from the cache or GET /auth/me.
func (s *AuthService) Me(ctx context.Context) (*domain.User, error) {
	stale := config.Seconds(s.config.Get().Cache.UserStaleSeconds, 5*time.Minute)
	user, err := FetchAs(ctx, s.cache, domain.CurrentUserKey(), stale, func(ctx context.Context) (domain.User, error) {
		var u domain.User
		err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodGet, Path: "/auth/me"}, &u)
		return u, err
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout notifies the backend and always clears local state, even when the
// backend call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	if s.session.Snapshot().IsAuthenticated() {
		err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodPost, Path: "/auth/logout"}, nil)
		if err != nil && !errors.Is(err, domain.ErrUnauthorized) && !errors.Is(err, domain.ErrRefreshFailed) {
			s.logger.Warn(ctx, "Backend logout failed, clearing local session anyway", "error", err.Error())
		}
	}
	err := s.session.Logout(ctx)
	s.cache.Clear()
	return err
}

// Session returns the current session.
func (s *AuthService) Session() domain.Session {
	return s.session.Snapshot()
}
