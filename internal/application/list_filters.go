package application

import (
	"sync"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// ListFilters is the feed's sort and author filter, shared by whoever renders the feed.
type ListFilters struct {
	mu     sync.RWMutex
	sortBy domain.PostSortBy
	order  domain.SortOrder
	userID string
}

func NewListFilters() *ListFilters {
	return &ListFilters{sortBy: domain.SortByCreatedAt, order: domain.SortDesc}
}

func (f *ListFilters) SetSortBy(sortBy domain.PostSortBy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sortBy = sortBy
}

func (f *ListFilters) SetOrder(order domain.SortOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = order
}

// SetUserID restricts the feed to one author. Empty shows everyone.
func (f *ListFilters) SetUserID(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
}

func (f *ListFilters) ToggleSortOrder() domain.SortOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order == domain.SortDesc {
		f.order = domain.SortAsc
	} else {
		f.order = domain.SortDesc
	}
	return f.order
}

// Reset restores newest-first with no author filter.
func (f *ListFilters) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sortBy = domain.SortByCreatedAt
	f.order = domain.SortDesc
	f.userID = ""
}

// Params renders the filters for one page.
func (f *ListFilters) Params(page, limit int) domain.GetPostsParams {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return domain.GetPostsParams{
		Page:   page,
		Limit:  limit,
		SortBy: f.sortBy,
		Order:  f.order,
		UserID: f.userID,
	}
}
