package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gitlab.com/timkado/api/social-feed-client/internal/application"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers exposes the client's services over a local JSON API.
type Handlers struct {
	logger   domain.Logger
	auth     *application.AuthService
	posts    *application.PostsService
	comments *application.CommentsService
	filters  *application.ListFilters
	checks   []ReadinessCheck
}

func NewHandlers(logger domain.Logger, auth *application.AuthService, posts *application.PostsService, comments *application.CommentsService, filters *application.ListFilters, checks []ReadinessCheck) *Handlers {
	return &Handlers{
		logger:   logger,
		auth:     auth,
		posts:    posts,
		comments: comments,
		filters:  filters,
		checks:   checks,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) // Best effort, the status is already sent.
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp, status := domain.ErrorResponseFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "Request failed", "path", r.URL.Path, "status", status, "error", err.Error())
	} else {
		h.logger.Debug(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "error", err.Error())
	}
	resp.WriteJSON(w, status)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn(r.Context(), "Failed to decode request payload", "path", r.URL.Path, "error", err.Error())
		domain.NewErrorResponse(domain.ErrCodeBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{
			Message: "Invalid query parameter",
			Errors:  map[string][]string{name: {fmt.Sprintf("%s must be a non-negative integer", name)}},
		}
	}
	return n, nil
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every readiness check and reports 503 when any fails.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn(ctx, "Readiness check failed", "check", c.Name, "error", err.Error())
			results[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auth.Session())
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var creds domain.LoginCredentials
	if !h.decode(w, r, &creds) {
		return
	}
	if _, err := h.auth.Login(r.Context(), creds); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.auth.Session())
}

// signupRequest carries confirmPassword, which is never sent to the backend.
type signupRequest struct {
	domain.SignupCredentials
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}
	creds := req.SignupCredentials
	creds.ConfirmPassword = req.ConfirmPassword
	if _, err := h.auth.Signup(r.Context(), creds); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.auth.Session())
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// pageResponse is a paginated list plus the page an infinite list loads next.
type pageResponse[T any] struct {
	Data     []T                   `json:"data"`
	Meta     domain.PaginationMeta `json:"meta"`
	NextPage *int                  `json:"nextPage"`
}

func newPageResponse[T any](data []T, meta domain.PaginationMeta) pageResponse[T] {
	resp := pageResponse[T]{Data: data, Meta: meta}
	if next, ok := meta.NextPage(); ok {
		resp.NextPage = &next
	}
	return resp
}

// ListPosts lists one page using the shared feed filters. Query parameters
// override them for this request only.
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	params := h.filters.Params(page, limit)
	q := r.URL.Query()
	if v := q.Get("sortBy"); v != "" {
		params.SortBy = domain.PostSortBy(v)
	}
	if v := q.Get("order"); v != "" {
		params.Order = domain.SortOrder(v)
	}
	if v, ok := q["userId"]; ok {
		params.UserID = v[0]
	}
	resp, err := h.posts.ListPosts(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(resp.Data, resp.Meta))
}

// filtersRequest updates only the fields it carries.
type filtersRequest struct {
	SortBy *domain.PostSortBy `json:"sortBy"`
	Order  *domain.SortOrder  `json:"order"`
	UserID *string            `json:"userId"`
}

func (req filtersRequest) validate() error {
	errs := map[string][]string{}
	if req.SortBy != nil {
		switch *req.SortBy {
		case domain.SortByCreatedAt, domain.SortByLikes, domain.SortByComments:
		default:
			errs["sortBy"] = []string{"sortBy must be one of createdAt, likes, comments"}
		}
	}
	if req.Order != nil && *req.Order != domain.SortAsc && *req.Order != domain.SortDesc {
		errs["order"] = []string{"order must be ASC or DESC"}
	}
	if len(errs) > 0 {
		return &domain.ValidationError{Message: "Invalid feed filters", Errors: errs}
	}
	return nil
}

func (h *Handlers) GetFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.filters.Params(0, 0))
}

func (h *Handlers) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SortBy != nil {
		h.filters.SetSortBy(*req.SortBy)
	}
	if req.Order != nil {
		h.filters.SetOrder(*req.Order)
	}
	if req.UserID != nil {
		h.filters.SetUserID(*req.UserID)
	}
	writeJSON(w, http.StatusOK, h.filters.Params(0, 0))
}

func (h *Handlers) ToggleSortOrder(w http.ResponseWriter, r *http.Request) {
	h.filters.ToggleSortOrder()
	writeJSON(w, http.StatusOK, h.filters.Params(0, 0))
}

func (h *Handlers) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.filters.Reset()
	writeJSON(w, http.StatusOK, h.filters.Params(0, 0))
}

func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	var dto domain.CreatePostDto
	if !h.decode(w, r, &dto) {
		return
	}
	post, err := h.posts.CreatePost(r.Context(), dto)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetPost(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *Handlers) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var dto domain.UpdatePostDto
	if !h.decode(w, r, &dto) {
		return
	}
	post, err := h.posts.UpdatePost(r.Context(), mux.Vars(r)["id"], dto)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.DeletePost(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ToggleLike(w http.ResponseWriter, r *http.Request) {
	resp, err := h.posts.ToggleLike(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) LikesCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.posts.LikesCount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LikesCountResponse{Count: n})
}

func (h *Handlers) IsLiked(w http.ResponseWriter, r *http.Request) {
	liked, err := h.posts.IsLiked(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.IsLikedResponse{IsLiked: liked})
}

func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.comments.ListComments(r.Context(), domain.GetCommentsParams{PostID: mux.Vars(r)["id"], Page: page, Limit: limit})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(resp.Data, resp.Meta))
}

func (h *Handlers) CommentsCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.comments.CommentsCount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CommentsCountResponse{Count: n})
}

func (h *Handlers) CreateComment(w http.ResponseWriter, r *http.Request) {
	var dto domain.CreateCommentDto
	if !h.decode(w, r, &dto) {
		return
	}
	comment, err := h.comments.CreateComment(r.Context(), mux.Vars(r)["id"], dto)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *Handlers) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var dto domain.UpdateCommentDto
	if !h.decode(w, r, &dto) {
		return
	}
	comment, err := h.comments.UpdateComment(r.Context(), mux.Vars(r)["id"], dto)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	postID := r.URL.Query().Get("postId")
	if postID == "" {
		h.writeError(w, r, &domain.ValidationError{
			Message: "Missing query parameter",
			Errors:  map[string][]string{"postId": {"postId is required"}},
		})
		return
	}
	if err := h.comments.DeleteComment(r.Context(), mux.Vars(r)["id"], postID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	domain.NewErrorResponse(domain.ErrCodeNotFound, "Route not found", r.Method+" "+r.URL.Path).WriteJSON(w, http.StatusNotFound)
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	domain.NewErrorResponse(domain.ErrCodeBadRequest, "Method not allowed", r.Method+" "+r.URL.Path).WriteJSON(w, http.StatusMethodNotAllowed)
}
