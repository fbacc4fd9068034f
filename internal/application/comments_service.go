package application

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// CommentsService reads and writes comments. Comment writes change the parent
// post's comment count, so they also invalidate post entries.
type CommentsService struct {
	logger     domain.Logger
	config     config.Provider
	dispatcher *Dispatcher
	cache      *ResponseCache
}

func NewCommentsService(logger domain.Logger, config config.Provider, dispatcher *Dispatcher, cache *ResponseCache) *CommentsService {
	return &CommentsService{
		logger:     logger,
		config:     config,
		dispatcher: dispatcher,
		cache:      cache,
	}
}

func commentPath(id string) string {
	return "/posts/comments/" + url.PathEscape(id)
}

func (s *CommentsService) ListComments(ctx context.Context, params domain.GetCommentsParams) (*domain.PaginatedCommentsResponse, error) {
	stale := config.Seconds(s.config.Get().Cache.CommentsStaleSeconds, 2*time.Minute)
	page, err := FetchAs(ctx, s.cache, domain.CommentListKey(params), stale, func(ctx context.Context) (domain.PaginatedCommentsResponse, error) {
		var out domain.PaginatedCommentsResponse
		err := s.dispatcher.Do(ctx, domain.APIRequest{
			Method: http.MethodGet,
			Path:   postPath(params.PostID, "comments"),
			Query:  params.Query(),
		}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *CommentsService) CreateComment(ctx context.Context, postID string, dto domain.CreateCommentDto) (*domain.Comment, error) {
	if err := domain.Validate(dto); err != nil {
		return nil, err
	}
	var comment domain.Comment
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodPost, Path: postPath(postID, "comments"), Body: dto}, &comment); err != nil {
		return nil, err
	}
	s.invalidateThread(postID)
	return &comment, nil
}

func (s *CommentsService) UpdateComment(ctx context.Context, commentID string, dto domain.UpdateCommentDto) (*domain.Comment, error) {
	if err := domain.Validate(dto); err != nil {
		return nil, err
	}
	var comment domain.Comment
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodPatch, Path: commentPath(commentID), Body: dto}, &comment); err != nil {
		return nil, err
	}
	s.cache.Set(domain.CommentDetailKey(commentID), comment)
	s.cache.InvalidatePrefix(domain.CommentListsPrefix(comment.PostID))
	return &comment, nil
}

// DeleteComment needs postID because the backend response carries no body to read it from.
func (s *CommentsService) DeleteComment(ctx context.Context, commentID, postID string) error {
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodDelete, Path: commentPath(commentID)}, nil); err != nil {
		return err
	}
	s.cache.Remove(domain.CommentDetailKey(commentID))
	s.invalidateThread(postID)
	return nil
}

func (s *CommentsService) CommentsCount(ctx context.Context, postID string) (int, error) {
	var out domain.CommentsCountResponse
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodGet, Path: postPath(postID, "comments", "count")}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// invalidateThread marks the post's comment lists, the post itself and every
// post list stale, since they all show the comment count.
func (s *CommentsService) invalidateThread(postID string) {
	s.cache.InvalidatePrefix(domain.CommentListsPrefix(postID))
	s.cache.Invalidate(domain.PostDetailKey(postID))
	s.cache.InvalidatePrefix(domain.PostListsPrefix())
}
