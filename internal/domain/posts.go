package domain

import (
	"net/url"
	"strconv"
)

// Author is the denormalized author embedded in posts and comments.
type Author struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatarUrl"`
}

// Post is a cached entity. IsLikedByCurrentUser and LikesCount are the only
// fields patched optimistically.
type Post struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Content              string  `json:"content"`
	ImageURL             *string `json:"imageUrl,omitempty"`
	IsPublished          bool    `json:"isPublished"`
	Author               Author  `json:"author"`
	CommentsCount        int     `json:"commentsCount"`
	LikesCount           int     `json:"likesCount"`
	IsLikedByCurrentUser bool    `json:"isLikedByCurrentUser"`
	CreatedAt            string  `json:"createdAt"`
	UpdatedAt            string  `json:"updatedAt"`
}

// WithToggledLike returns a copy with the like state flipped and the count adjusted.
func (p Post) WithToggledLike() Post {
	if p.IsLikedByCurrentUser {
		p.LikesCount--
	} else {
		p.LikesCount++
	}
	p.IsLikedByCurrentUser = !p.IsLikedByCurrentUser
	return p
}

type CreatePostDto struct {
	Title    string `json:"title" validate:"trimmed_len=3:200"`
	Content  string `json:"content" validate:"trimmed_len=10:10000"`
	ImageURL string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

type UpdatePostDto struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,trimmed_len=3:200"`
	Content  *string `json:"content,omitempty" validate:"omitempty,trimmed_len=10:10000"`
	ImageURL *string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// PostSortBy is the server-side ordering of post lists.
type PostSortBy string

const (
	SortByCreatedAt PostSortBy = "createdAt"
	SortByLikes     PostSortBy = "likes"
	SortByComments  PostSortBy = "comments"
)

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// GetPostsParams are the query parameters of GET /posts. Zero values are omitted.
type GetPostsParams struct {
	Page   int        `json:"page,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	SortBy PostSortBy `json:"sortBy,omitempty"`
	Order  SortOrder  `json:"order,omitempty"`
	UserID string     `json:"userId,omitempty"`
}

// Query renders the params as URL query values.
func (p GetPostsParams) Query() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.SortBy != "" {
		q.Set("sortBy", string(p.SortBy))
	}
	if p.Order != "" {
		q.Set("order", string(p.Order))
	}
	if p.UserID != "" {
		q.Set("userId", p.UserID)
	}
	return q
}

// PaginationMeta accompanies every paginated list response.
type PaginationMeta struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// NextPage returns the page to request for infinite lists.
func (m PaginationMeta) NextPage() (int, bool) {
	if !m.HasNextPage {
		return 0, false
	}
	return m.Page + 1, true
}

type PaginatedPostsResponse struct {
	Data []Post         `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type ToggleLikeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

type LikesCountResponse struct {
	Count int `json:"count"`
}

type IsLikedResponse struct {
	IsLiked bool `json:"isLiked"`
}

type Comment struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	PostID    string `json:"postId"`
	Author    Author `json:"author"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type CreateCommentDto struct {
	Content string `json:"content" validate:"trimmed_len=1:1000"`
}

type UpdateCommentDto struct {
	Content string `json:"content" validate:"trimmed_len=1:1000"`
}

type PaginatedCommentsResponse struct {
	Data []Comment      `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

type CommentsCountResponse struct {
	Count int `json:"count"`
}

// GetCommentsParams addresses one page of a post's comments. PostID is a path
// parameter, the rest are query parameters.
type GetCommentsParams struct {
	PostID string `json:"postId"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (p GetCommentsParams) Query() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}
