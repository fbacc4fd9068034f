package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/memory"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*ResponseCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewResponseCache(domain.NopLogger{}, 10*time.Minute)
	c.now = clock.Now
	return c, clock
}

func counting(val any, calls *atomic.Int32) FetchFunc {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return val, nil
	}
}

func TestResponseCacheServesFreshEntries(t *testing.T) {
	c, clock := newTestCache()
	key := domain.PostDetailKey("p1")
	var calls atomic.Int32

	v, err := c.Fetch(context.Background(), key, time.Minute, counting("v1", &calls))
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	clock.Advance(30 * time.Second)
	v, err = c.Fetch(context.Background(), key, time.Minute, counting("v2", &calls))
	require.NoError(t, err)
	require.Equal(t, "v1", v)
	require.EqualValues(t, 1, calls.Load())

	clock.Advance(time.Minute)
	v, err = c.Fetch(context.Background(), key, time.Minute, counting("v3", &calls))
	require.NoError(t, err)
	require.Equal(t, "v3", v)
	require.EqualValues(t, 2, calls.Load())
}

func TestResponseCacheDeduplicatesConcurrentFetches(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostListKey(domain.GetPostsParams{Page: 1, Limit: 10})
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "page-1", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make(chan any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), key, time.Minute, fetch)
			if err == nil {
				results <- v
			}
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	require.EqualValues(t, 1, calls.Load())
	count := 0
	for v := range results {
		require.Equal(t, "page-1", v)
		count++
	}
	require.Equal(t, n, count)
}

func TestResponseCacheFetchErrorIsNotCached(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	boom := errors.New("boom")

	_, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	_, ok := c.Get(key)
	require.False(t, ok)

	v, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestResponseCachePanickingFetchReleasesJoinedCallers(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	release := make(chan struct{})
	started := make(chan struct{})

	leader := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) {
			close(started)
			<-release
			panic("decoder exploded")
		})
		leader <- err
	}()
	<-started

	joined := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) {
			return "should not run", nil
		})
		joined <- err
	}()
	// Give the second caller time to join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, ch := range []chan error{leader, joined} {
		select {
		case err := <-ch:
			require.ErrorContains(t, err, "decoder exploded")
		case <-time.After(time.Second):
			t.Fatal("caller still blocked after the fetch panicked")
		}
	}

	c.mu.Lock()
	require.Empty(t, c.inflight)
	c.mu.Unlock()

	v, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestResponseCacheInvalidateForcesRefetch(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	var calls atomic.Int32

	_, err := c.Fetch(context.Background(), key, time.Hour, counting("v1", &calls))
	require.NoError(t, err)
	c.Invalidate(key)

	// Stale data stays readable until the refetch lands.
	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	v, err = c.Fetch(context.Background(), key, time.Hour, counting("v2", &calls))
	require.NoError(t, err)
	require.Equal(t, "v2", v)
	require.EqualValues(t, 2, calls.Load())
}

func TestResponseCacheDiscardsFetchOlderThanWrite(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) {
			close(started)
			<-release
			return "from-server", nil
		})
		done <- v
	}()

	<-started
	c.Set(key, "confirmed")
	close(release)

	require.Equal(t, "from-server", <-done)
	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "confirmed", v)
}

func TestResponseCacheInvalidationDuringFetchStoresStale(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Fetch(context.Background(), key, time.Hour, func(context.Context) (any, error) {
			close(started)
			<-release
			return "before-mutation", nil
		})
	}()

	<-started
	c.Invalidate(key)
	close(release)
	<-done

	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "before-mutation", v)

	var calls atomic.Int32
	v, err := c.Fetch(context.Background(), key, time.Hour, counting("after-mutation", &calls))
	require.NoError(t, err)
	require.Equal(t, "after-mutation", v)
	require.EqualValues(t, 1, calls.Load())
}

func TestResponseCacheFetchAfterInvalidationDoesNotJoinOlderFetch(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), key, time.Hour, func(context.Context) (any, error) {
			close(started)
			<-release
			return "first", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate(key)
	v, err := c.Fetch(context.Background(), key, time.Hour, func(context.Context) (any, error) { return "second", nil })
	require.NoError(t, err)
	require.Equal(t, "second", v)

	close(release)
	require.Equal(t, "first", <-done)

	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "second", v)
}

func TestResponseCacheClearDropsInFlightResults(t *testing.T) {
	c, _ := newTestCache()
	key := domain.CurrentUserKey()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Fetch(context.Background(), key, time.Hour, func(context.Context) (any, error) {
			close(started)
			<-release
			return domain.User{ID: "previous-user"}, nil
		})
	}()

	<-started
	c.Clear()
	close(release)
	<-done

	_, ok := c.Get(key)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestResponseCacheRemoveDropsValue(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	c.Set(key, "v1")
	c.Remove(key)

	_, ok := c.Get(key)
	require.False(t, ok)
	_, err := c.Apply(key, PatchAs(func(s string) string { return s }))
	require.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestResponseCacheInvalidatePrefixMatchesSegments(t *testing.T) {
	c, _ := newTestCache()
	page1 := domain.PostListKey(domain.GetPostsParams{Page: 1, Limit: 10})
	page2 := domain.PostListKey(domain.GetPostsParams{Page: 2, Limit: 10})
	detail := domain.PostDetailKey("p1")
	c.Set(page1, "p1")
	c.Set(page2, "p2")
	c.Set(detail, "d")

	c.InvalidatePrefix(domain.PostListsPrefix())

	var calls atomic.Int32
	_, err := c.Fetch(context.Background(), page1, time.Hour, counting("p1'", &calls))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), page2, time.Hour, counting("p2'", &calls))
	require.NoError(t, err)
	v, err := c.Fetch(context.Background(), detail, time.Hour, counting("d'", &calls))
	require.NoError(t, err)
	require.Equal(t, "d", v)
	require.EqualValues(t, 2, calls.Load())

	require.True(t, hasKeyPrefix("posts/list?page=1", "posts/list"))
	require.True(t, hasKeyPrefix("posts/list", "posts/list"))
	require.False(t, hasKeyPrefix("posts/listing", "posts/list"))
}

func TestResponseCacheRollbackRestoresSnapshot(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	original := domain.Post{ID: "p1", Title: "Hello", LikesCount: 5}
	c.Set(key, original)

	var rolledBack []domain.CacheKey
	c.OnRollback(func(k domain.CacheKey) { rolledBack = append(rolledBack, k) })

	token, err := c.Apply(key, PatchAs(domain.Post.WithToggledLike))
	require.NoError(t, err)
	require.True(t, token.Valid())

	visible, ok := GetAs[domain.Post](c, key)
	require.True(t, ok)
	require.True(t, visible.IsLikedByCurrentUser)
	require.Equal(t, 6, visible.LikesCount)

	c.Rollback(token)
	restored, ok := GetAs[domain.Post](c, key)
	require.True(t, ok)
	require.Equal(t, original, restored)
	require.Equal(t, []domain.CacheKey{key}, rolledBack)

	// A second rollback of the same token is a no-op.
	c.Rollback(token)
	require.Len(t, rolledBack, 1)
}

func TestResponseCacheCommitFoldsLayer(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	c.Set(key, domain.Post{ID: "p1", LikesCount: 5})

	token, err := c.Apply(key, PatchAs(domain.Post.WithToggledLike))
	require.NoError(t, err)
	c.Commit(token)

	// Rolling back after commit changes nothing.
	c.Rollback(token)
	post, ok := GetAs[domain.Post](c, key)
	require.True(t, ok)
	require.True(t, post.IsLikedByCurrentUser)
	require.Equal(t, 6, post.LikesCount)
}

func TestResponseCacheCommitAfterServerWriteDropsLayer(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	c.Set(key, domain.Post{ID: "p1", LikesCount: 5})

	token, err := c.Apply(key, PatchAs(domain.Post.WithToggledLike))
	require.NoError(t, err)

	server := domain.Post{ID: "p1", LikesCount: 10, IsLikedByCurrentUser: true}
	c.Set(key, server)
	c.Commit(token)

	post, ok := GetAs[domain.Post](c, key)
	require.True(t, ok)
	require.Equal(t, server, post)
}

func TestResponseCachePrune(t *testing.T) {
	c, clock := newTestCache()
	old := domain.PostDetailKey("old")
	recent := domain.PostDetailKey("recent")
	pinned := domain.PostDetailKey("pinned")
	c.Set(old, "o")
	c.Set(pinned, domain.Post{ID: "pinned"})
	_, err := c.Apply(pinned, PatchAs(domain.Post.WithToggledLike))
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	c.Set(recent, "r")
	clock.Advance(2 * time.Minute)

	require.Equal(t, 1, c.Prune(clock.Now()))
	_, ok := c.Get(old)
	require.False(t, ok)
	_, ok = c.Get(recent)
	require.True(t, ok)
	_, ok = c.Get(pinned)
	require.True(t, ok)
}

func TestFetchAsRejectsWrongType(t *testing.T) {
	c, _ := newTestCache()
	key := domain.PostDetailKey("p1")
	c.Set(key, "not a post")

	_, err := FetchAs(context.Background(), c, key, time.Hour, func(context.Context) (domain.Post, error) {
		return domain.Post{}, nil
	})
	require.Error(t, err)
}

func TestResponseCacheBindToSessionClearsOnOwnerChange(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	session := NewSessionState(memory.NewCredentialStore(), domain.NopLogger{})
	unsubscribe := c.BindToSession(session)
	defer unsubscribe()

	require.NoError(t, session.SetAuth(ctx, domain.User{ID: "u1"}, "a1", "r1"))
	c.Set(domain.CurrentUserKey(), domain.User{ID: "u1"})

	require.NoError(t, session.RotateTokens(ctx, "a2", "r2"))
	require.Equal(t, 1, c.Len())

	require.NoError(t, session.SetAuth(ctx, domain.User{ID: "u2"}, "b1", "rb1"))
	require.Equal(t, 0, c.Len())

	c.Set(domain.CurrentUserKey(), domain.User{ID: "u2"})
	require.NoError(t, session.Logout(ctx))
	require.Equal(t, 0, c.Len())
}
