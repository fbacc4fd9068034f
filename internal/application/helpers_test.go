package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/memory"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

type backendFunc func(req domain.APIRequest, bearer string) (*domain.APIResponse, error)

type recordedCall struct {
	req    domain.APIRequest
	bearer string
}

// fakeTransport records every call and answers through handler.
type fakeTransport struct {
	mu      sync.Mutex
	handler backendFunc
	calls   []recordedCall
}

func (f *fakeTransport) RoundTrip(ctx context.Context, req domain.APIRequest, bearer string) (*domain.APIResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{req: req, bearer: bearer})
	h := f.handler
	f.mu.Unlock()
	domain.Dispatched(ctx)
	return h(req, bearer)
}

// paths returns the recorded paths in call order.
func (f *fakeTransport) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.req.Path)
	}
	return out
}

func (f *fakeTransport) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.req.Method == method && c.req.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeTransport) bearers(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.req.Path == path {
			out = append(out, c.bearer)
		}
	}
	return out
}

func jsonResponse(status int, v any) *domain.APIResponse {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &domain.APIResponse{Status: status, Body: body}
}

type harness struct {
	transport  *fakeTransport
	store      *memory.CredentialStore
	session    *SessionState
	dispatcher *Dispatcher
	cache      *ResponseCache
	cfg        config.Provider
}

func newHarness(t *testing.T, handler backendFunc) *harness {
	t.Helper()
	logger := domain.NopLogger{}
	transport := &fakeTransport{handler: handler}
	store := memory.NewCredentialStore()
	session := NewSessionState(store, logger)
	cache := NewResponseCache(logger, 5*time.Minute)
	return &harness{
		transport:  transport,
		store:      store,
		session:    session,
		dispatcher: NewDispatcher(transport, session, logger),
		cache:      cache,
		cfg:        config.NewStaticProvider(config.Default()),
	}
}

func (h *harness) login(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, h.session.SetAuth(context.Background(), domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}, access, refresh))
}

func (h *harness) posts() *PostsService {
	return NewPostsService(domain.NopLogger{}, h.cfg, h.dispatcher, h.cache)
}

func (h *harness) comments() *CommentsService {
	return NewCommentsService(domain.NopLogger{}, h.cfg, h.dispatcher, h.cache)
}

func (h *harness) auth() *AuthService {
	return NewAuthService(domain.NopLogger{}, h.cfg, h.dispatcher, h.session, h.cache)
}

func storedSlot(t *testing.T, store domain.CredentialStore, slot domain.CredentialSlot) (string, bool) {
	t.Helper()
	v, ok, err := store.Get(context.Background(), slot)
	require.NoError(t, err)
	return v, ok
}
