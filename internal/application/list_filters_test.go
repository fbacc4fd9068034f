package application

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

func TestListFilters(t *testing.T) {
	f := NewListFilters()
	require.Equal(t, domain.GetPostsParams{Page: 1, Limit: 10, SortBy: domain.SortByCreatedAt, Order: domain.SortDesc}, f.Params(1, 10))

	require.Equal(t, domain.SortAsc, f.ToggleSortOrder())
	require.Equal(t, domain.SortDesc, f.ToggleSortOrder())

	f.SetSortBy(domain.SortByLikes)
	f.SetOrder(domain.SortAsc)
	f.SetUserID("u1")
	p := f.Params(2, 20)
	require.Equal(t, domain.SortByLikes, p.SortBy)
	require.Equal(t, domain.SortAsc, p.Order)
	require.Equal(t, "u1", p.UserID)
	require.Equal(t, "2", p.Query().Get("page"))

	f.Reset()
	require.Equal(t, domain.GetPostsParams{Page: 1, Limit: 10, SortBy: domain.SortByCreatedAt, Order: domain.SortDesc}, f.Params(1, 10))
}
