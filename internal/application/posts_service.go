package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// PostsService reads posts through the response cache and keeps the cache
// consistent after writes.
type PostsService struct {
	logger     domain.Logger
	config     config.Provider
	dispatcher *Dispatcher
	cache      *ResponseCache
}

func NewPostsService(logger domain.Logger, config config.Provider, dispatcher *Dispatcher, cache *ResponseCache) *PostsService {
	return &PostsService{
		logger:     logger,
		config:     config,
		dispatcher: dispatcher,
		cache:      cache,
	}
}

func (s *PostsService) staleTime() time.Duration {
	return config.Seconds(s.config.Get().Cache.PostsStaleSeconds, 5*time.Minute)
}

func postPath(id string, rest ...string) string {
	p := "/posts/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ListPosts returns one page of posts.
func (s *PostsService) ListPosts(ctx context.Context, params domain.GetPostsParams) (*domain.PaginatedPostsResponse, error) {
	page, err := FetchAs(ctx, s.cache, domain.PostListKey(params), s.staleTime(), func(ctx context.Context) (domain.PaginatedPostsResponse, error) {
		var out domain.PaginatedPostsResponse
		err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodGet, Path: "/posts", Query: params.Query()}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetPost returns a post, including any optimistic like state.
func (s *PostsService) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	post, err := FetchAs(ctx, s.cache, domain.PostDetailKey(id), s.staleTime(), func(ctx context.Context) (domain.Post, error) {
		var out domain.Post
		err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodGet, Path: postPath(id)}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost creates a post, seeds its detail entry and invalidates every list.
func (s *PostsService) CreatePost(ctx context.Context, dto domain.CreatePostDto) (*domain.Post, error) {
	if err := domain.Validate(dto); err != nil {
		return nil, err
	}
	var post domain.Post
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodPost, Path: "/posts", Body: dto}, &post); err != nil {
		return nil, err
	}
	s.cache.InvalidatePrefix(domain.PostListsPrefix())
	s.cache.Set(domain.PostDetailKey(post.ID), post)
	return &post, nil
}

// UpdatePost applies a partial update and stores the server's version.
func (s *PostsService) UpdatePost(ctx context.Context, id string, dto domain.UpdatePostDto) (*domain.Post, error) {
	if err := domain.Validate(dto); err != nil {
		return nil, err
	}
	var post domain.Post
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodPatch, Path: postPath(id), Body: dto}, &post); err != nil {
		return nil, err
	}
	s.cache.Set(domain.PostDetailKey(id), post)
	s.cache.InvalidatePrefix(domain.PostListsPrefix())
	return &post, nil
}

// DeletePost deletes a post and drops everything cached about it.
func (s *PostsService) DeletePost(ctx context.Context, id string) error {
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodDelete, Path: postPath(id)}, nil); err != nil {
		return err
	}
	s.cache.Remove(domain.PostDetailKey(id))
	s.cache.InvalidatePrefix(domain.PostListsPrefix())
	s.cache.InvalidatePrefix(domain.CommentListsPrefix(id))
	return nil
}

// ToggleLike flips the like state optimistically, then settles on the server's answer.
// On failure the optimistic change is rolled back and the error returned.
func (s *PostsService) ToggleLike(ctx context.Context, id string) (*domain.ToggleLikeResponse, error) {
	key := domain.PostDetailKey(id)
	token, err := s.cache.Apply(key, PatchAs(domain.Post.WithToggledLike))
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		return nil, err
	}

	var resp domain.ToggleLikeResponse
	err = s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodPost, Path: postPath(id, "like")}, &resp)
	defer func() {
		s.cache.Invalidate(key)
		s.cache.InvalidatePrefix(domain.PostListsPrefix())
	}()
	if err != nil {
		s.cache.Rollback(token)
		s.logger.Info(ctx, "Like toggle failed, rolled back", "post_id", id, "error", err.Error())
		return nil, err
	}

	s.cache.Commit(token)
	if updateErr := s.cache.Update(key, func(current any) (any, error) {
		post, ok := current.(domain.Post)
		if !ok {
			return nil, fmt.Errorf("unexpected %T", current)
		}
		post.IsLikedByCurrentUser = resp.Liked
		post.LikesCount = resp.LikesCount
		return post, nil
	}); updateErr != nil {
		s.logger.Warn(ctx, "Could not apply confirmed like state", "post_id", id, "error", updateErr.Error())
	}
	return &resp, nil
}

func (s *PostsService) LikesCount(ctx context.Context, id string) (int, error) {
	var out domain.LikesCountResponse
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodGet, Path: postPath(id, "likes", "count")}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *PostsService) IsLiked(ctx context.Context, id string) (bool, error) {
	var out domain.IsLikedResponse
	if err := s.dispatcher.Do(ctx, domain.APIRequest{Method: http.MethodGet, Path: postPath(id, "likes", "me")}, &out); err != nil {
		return false, err
	}
	return out.IsLiked, nil
}
