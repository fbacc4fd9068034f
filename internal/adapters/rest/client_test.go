package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/contextkeys"
)

func newTestClient(t *testing.T, baseURL string, timeoutSeconds int) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = baseURL
	cfg.API.TimeoutSeconds = timeoutSeconds
	c, err := NewClient(config.NewStaticProvider(cfg), domain.NopLogger{})
	require.NoError(t, err)
	return c
}

func TestRoundTripSendsBearerQueryAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/posts", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "req-9", r.Header.Get("X-Request-ID"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"content":"hello"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"c1"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/api/", 5)
	ctx := context.WithValue(context.Background(), contextkeys.RequestIDKey, "req-9")
	resp, err := c.RoundTrip(ctx, domain.APIRequest{
		Method: http.MethodPost,
		Path:   "/posts",
		Query:  url.Values{"page": []string{"2"}},
		Body:   domain.CreateCommentDto{Content: "hello"},
	}, "tok")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.JSONEq(t, `{"id":"c1"}`, string(resp.Body))
}

func TestRoundTripOmitsAuthorizationWithoutBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(domain.APIErrorBody{Message: "nope"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 5)
	resp, err := c.RoundTrip(context.Background(), domain.APIRequest{Method: http.MethodGet, Path: "/auth/me"}, "")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestRoundTripTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL, 5)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.RoundTrip(ctx, domain.APIRequest{Method: http.MethodGet, Path: "/posts"}, "")
	require.ErrorIs(t, err, domain.ErrNetwork)
	require.ErrorIs(t, err, domain.ErrTimeout)
	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestRoundTripUnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	c := newTestClient(t, addr, 1)
	_, err := c.RoundTrip(context.Background(), domain.APIRequest{Method: http.MethodGet, Path: "/posts"}, "")
	require.ErrorIs(t, err, domain.ErrNetwork)
	require.NotErrorIs(t, err, domain.ErrTimeout)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = ""
	_, err := NewClient(config.NewStaticProvider(cfg), domain.NopLogger{})
	require.Error(t, err)
}
