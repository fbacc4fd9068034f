package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/adapters/middleware"
	"gitlab.com/timkado/api/social-feed-client/internal/application"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// NewRouter wires the operational endpoints and the /v1 API.
func NewRouter(h *Handlers, session *application.SessionState, cfgProvider config.Provider, logger domain.Logger) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(h.notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)
	router.Use(middleware.RequestIDMiddleware)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(
		middleware.APIKeyAuthMiddleware(cfgProvider, logger),
		middleware.SessionContextMiddleware(session),
		middleware.AccessLogMiddleware(logger),
	)

	v1.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	v1.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	v1.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	v1.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	v1.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)

	v1.HandleFunc("/posts", h.ListPosts).Methods(http.MethodGet)
	v1.HandleFunc("/posts/filters", h.GetFilters).Methods(http.MethodGet)
	v1.HandleFunc("/posts/filters", h.UpdateFilters).Methods(http.MethodPatch)
	v1.HandleFunc("/posts/filters", h.ResetFilters).Methods(http.MethodDelete)
	v1.HandleFunc("/posts/filters/order/toggle", h.ToggleSortOrder).Methods(http.MethodPost)
	v1.HandleFunc("/posts", h.CreatePost).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{id}", h.GetPost).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}", h.UpdatePost).Methods(http.MethodPatch)
	v1.HandleFunc("/posts/{id}", h.DeletePost).Methods(http.MethodDelete)
	v1.HandleFunc("/posts/{id}/like", h.ToggleLike).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{id}/likes/count", h.LikesCount).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}/likes/me", h.IsLiked).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}/comments/count", h.CommentsCount).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}/comments", h.ListComments).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}/comments", h.CreateComment).Methods(http.MethodPost)

	v1.HandleFunc("/comments/{id}", h.UpdateComment).Methods(http.MethodPatch)
	v1.HandleFunc("/comments/{id}", h.DeleteComment).Methods(http.MethodDelete)

	return router
}
