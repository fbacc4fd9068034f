package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/memory"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/rest"
	"gitlab.com/timkado/api/social-feed-client/internal/application"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// fakeBackend stands in for the social feed REST API.
type fakeBackend struct {
	mu          sync.Mutex
	authHeaders []string
	listQueries []string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
	if r.URL.Path == "/api/posts" {
		b.listQueries = append(b.listQueries, r.URL.RawQuery)
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/login":
		_ = json.NewEncoder(w).Encode(domain.AuthResponse{
			User:         domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
			AccessToken:  "a1",
			RefreshToken: "r1",
		})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts/p1":
		_ = json.NewEncoder(w).Encode(domain.Post{ID: "p1", Title: "Hello", LikesCount: 2})
	case r.Method == http.MethodPost && r.URL.Path == "/api/posts/p1/like":
		_ = json.NewEncoder(w).Encode(domain.ToggleLikeResponse{Liked: true, LikesCount: 3})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts":
		page := r.URL.Query().Get("page")
		_ = json.NewEncoder(w).Encode(domain.PaginatedPostsResponse{
			Data: []domain.Post{{ID: "p-" + page}},
			Meta: domain.PaginationMeta{Page: atoi(page), Limit: 10, Total: 20, TotalPages: 2, HasNextPage: page == "1", HasPreviousPage: page == "2"},
		})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts/p1/likes/count":
		_ = json.NewEncoder(w).Encode(domain.LikesCountResponse{Count: 7})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts/p1/likes/me":
		_ = json.NewEncoder(w).Encode(domain.IsLikedResponse{IsLiked: true})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts/p1/comments/count":
		_ = json.NewEncoder(w).Encode(domain.CommentsCountResponse{Count: 4})
	case r.Method == http.MethodGet && r.URL.Path == "/api/posts/p1/comments":
		_ = json.NewEncoder(w).Encode(domain.PaginatedCommentsResponse{
			Data: []domain.Comment{{ID: "c1", PostID: "p1"}},
			Meta: domain.PaginationMeta{Page: 1, Limit: 10, Total: 1, TotalPages: 1},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(domain.APIErrorBody{Message: "Post not found"})
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func (b *fakeBackend) lastListQuery() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, _ := url.ParseQuery(b.listQueries[len(b.listQueries)-1])
	return q
}

func (b *fakeBackend) lastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authHeaders[len(b.authHeaders)-1]
}

type testServer struct {
	router  http.Handler
	backend *fakeBackend
	session *application.SessionState
}

func newTestServer(t *testing.T, mutate func(*config.Config), checks ...ReadinessCheck) *testServer {
	t.Helper()
	backend := &fakeBackend{}
	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	cfg := config.Default()
	cfg.API.BaseURL = api.URL + "/api"
	if mutate != nil {
		mutate(cfg)
	}
	provider := config.NewStaticProvider(cfg)
	logger := domain.NopLogger{}

	client, err := rest.NewClient(provider, logger)
	require.NoError(t, err)
	session := application.NewSessionState(memory.NewCredentialStore(), logger)
	dispatcher := application.NewDispatcher(client, session, logger)
	cache := application.NewResponseCache(logger, time.Minute)
	cache.BindToSession(session)

	h := NewHandlers(logger,
		application.NewAuthService(logger, provider, dispatcher, session, cache),
		application.NewPostsService(logger, provider, dispatcher, cache),
		application.NewCommentsService(logger, provider, dispatcher, cache),
		application.NewListFilters(),
		checks,
	)
	return &testServer{
		router:  NewRouter(h, session, provider, logger),
		backend: backend,
		session: session,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", "", "X-Request-ID", "req-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/health", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLoginThenAuthorizedRequests(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/auth/login", `{"email":"ada@example.com","password":"Secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeBody[map[string]any](t, rec)
	require.Equal(t, true, session["isAuthenticated"])
	require.NotContains(t, rec.Body.String(), "accessToken")

	rec = s.do(t, http.MethodGet, "/v1/posts/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Hello", decodeBody[domain.Post](t, rec).Title)
	require.Equal(t, "Bearer a1", s.backend.lastAuthorization())

	rec = s.do(t, http.MethodPost, "/v1/posts/p1/like", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, decodeBody[domain.ToggleLikeResponse](t, rec).LikesCount)

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, s.session.Snapshot().IsAuthenticated())
}

func TestValidationErrorsAreReportedPerField(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/v1/posts", `{"title":"ab","content":"too short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[domain.ErrorResponse](t, rec)
	require.Equal(t, domain.ErrCodeValidation, resp.Code)
	require.Contains(t, resp.Errors, "title")
	require.Contains(t, resp.Errors, "content")
}

func TestBackendNotFoundMapsTo404(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/v1/posts/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[domain.ErrorResponse](t, rec)
	require.Equal(t, domain.ErrCodeNotFound, resp.Code)
	require.Equal(t, "Post not found", resp.Message)
}

func TestMalformedInput(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/auth/login", `{"email":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, domain.ErrCodeBadRequest, decodeBody[domain.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/v1/posts?page=abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[domain.ErrorResponse](t, rec).Errors, "page")

	rec = s.do(t, http.MethodDelete, "/v1/comments/c1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[domain.ErrorResponse](t, rec).Errors, "postId")

	rec = s.do(t, http.MethodGet, "/v1/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyGuardsV1(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Server.APIKey = "local-secret" })

	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/session", "").Code)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/session", "", "X-API-Key", "wrong").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/session", "", "X-API-Key", "local-secret").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "").Code)
}

func TestReadyReportsFailingChecks(t *testing.T) {
	s := newTestServer(t, nil,
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "nats", Check: func(context.Context) error { return errors.New("not connected") }},
	)
	rec := s.do(t, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, false, body["ready"])
	require.Equal(t, map[string]any{"redis": "ok", "nats": "not connected"}, body["checks"])
}

func TestPostCounters(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/posts/p1/likes/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 7, decodeBody[domain.LikesCountResponse](t, rec).Count)

	rec = s.do(t, http.MethodGet, "/v1/posts/p1/likes/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[domain.IsLikedResponse](t, rec).IsLiked)

	rec = s.do(t, http.MethodGet, "/v1/posts/p1/comments/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 4, decodeBody[domain.CommentsCountResponse](t, rec).Count)

	rec = s.do(t, http.MethodGet, "/v1/posts/missing/likes/count", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListsReportNextPage(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/posts?page=1&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, float64(2), body["nextPage"])

	rec = s.do(t, http.MethodGet, "/v1/posts?page=2&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string]any](t, rec)
	require.Contains(t, body, "nextPage")
	require.Nil(t, body["nextPage"])

	rec = s.do(t, http.MethodGet, "/v1/posts/p1/comments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[map[string]any](t, rec)
	require.Nil(t, body["nextPage"])
	require.Len(t, body["data"], 1)
}

func TestFeedFiltersDriveListPosts(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/v1/posts/filters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.GetPostsParams{SortBy: domain.SortByCreatedAt, Order: domain.SortDesc}, decodeBody[domain.GetPostsParams](t, rec))

	rec = s.do(t, http.MethodGet, "/v1/posts?page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	q := s.backend.lastListQuery()
	require.Equal(t, "createdAt", q.Get("sortBy"))
	require.Equal(t, "DESC", q.Get("order"))

	rec = s.do(t, http.MethodPatch, "/v1/posts/filters", `{"sortBy":"likes","userId":"u9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/v1/posts/filters/order/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.GetPostsParams{SortBy: domain.SortByLikes, Order: domain.SortAsc, UserID: "u9"}, decodeBody[domain.GetPostsParams](t, rec))

	s.do(t, http.MethodGet, "/v1/posts?page=1", "")
	q = s.backend.lastListQuery()
	require.Equal(t, "likes", q.Get("sortBy"))
	require.Equal(t, "ASC", q.Get("order"))
	require.Equal(t, "u9", q.Get("userId"))

	// Query parameters win for one request without touching the filters.
	s.do(t, http.MethodGet, "/v1/posts?page=1&sortBy=comments&userId=", "")
	q = s.backend.lastListQuery()
	require.Equal(t, "comments", q.Get("sortBy"))
	require.Empty(t, q.Get("userId"))
	require.Equal(t, domain.SortByLikes, decodeBody[domain.GetPostsParams](t, s.do(t, http.MethodGet, "/v1/posts/filters", "")).SortBy)

	rec = s.do(t, http.MethodPatch, "/v1/posts/filters", `{"sortBy":"views","order":"sideways"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[domain.ErrorResponse](t, rec)
	require.Contains(t, resp.Errors, "sortBy")
	require.Contains(t, resp.Errors, "order")

	rec = s.do(t, http.MethodDelete, "/v1/posts/filters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.GetPostsParams{SortBy: domain.SortByCreatedAt, Order: domain.SortDesc}, decodeBody[domain.GetPostsParams](t, rec))
}
