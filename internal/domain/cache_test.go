package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheKeysAreCanonical(t *testing.T) {
	a := PostListKey(GetPostsParams{Page: 1, Limit: 10, SortBy: SortByLikes, Order: SortDesc})
	b := PostListKey(GetPostsParams{Order: SortDesc, SortBy: SortByLikes, Limit: 10, Page: 1})
	require.Equal(t, a.String(), b.String())
	require.Equal(t, "posts/list/limit=10&order=DESC&page=1&sortBy=likes", a.String())

	require.Equal(t, "posts/detail/p1", PostDetailKey("p1").String())
	require.Equal(t, "user/me", CurrentUserKey().String())

	comments := CommentListKey(GetCommentsParams{PostID: "p1", Page: 2})
	require.Equal(t, "comments/list/p1/page=2", comments.String())
	require.Equal(t, "comments/list/p1", CommentListsPrefix("p1"))
}

func TestPostWithToggledLike(t *testing.T) {
	p := Post{ID: "p1", LikesCount: 3}
	liked := p.WithToggledLike()
	require.True(t, liked.IsLikedByCurrentUser)
	require.Equal(t, 4, liked.LikesCount)
	require.Equal(t, p, liked.WithToggledLike())
	require.False(t, p.IsLikedByCurrentUser)
}

func TestPaginationMetaNextPage(t *testing.T) {
	next, ok := PaginationMeta{Page: 1, TotalPages: 3, HasNextPage: true}.NextPage()
	require.True(t, ok)
	require.Equal(t, 2, next)

	_, ok = PaginationMeta{Page: 3, TotalPages: 3, HasPreviousPage: true}.NextPage()
	require.False(t, ok)
	_, ok = PaginationMeta{}.NextPage()
	require.False(t, ok)
}
