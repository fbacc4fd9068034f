package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/metrics"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/contextkeys"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// FetchFunc loads the server value for one cache key.
type FetchFunc func(ctx context.Context) (any, error)

// PatchFunc derives an optimistic value from the current one.
type PatchFunc func(current any) (any, error)

// OptimisticToken identifies one applied optimistic layer.
type OptimisticToken struct {
	key string
	id  uint64
}

// Valid reports whether the token refers to an applied layer.
func (t OptimisticToken) Valid() bool { return t.id != 0 }

// ResponseCache holds at most one value per key. Every write takes a sequence
// number; a fetch that started before the entry's last write is not stored, and
// a fetch that started before the last invalidation is stored as stale.
type ResponseCache struct {
	logger  domain.Logger
	now     func() time.Time
	gcAfter time.Duration

	mu       sync.Mutex
	seq      uint64
	epoch    uint64
	entries  map[string]*cacheEntry
	inflight map[string]*inflightFetch

	hookMu     sync.Mutex
	onRollback []func(domain.CacheKey)
}

type cacheEntry struct {
	key         domain.CacheKey
	base        any
	hasBase     bool
	updatedAt   time.Time
	lastAccess  time.Time
	invalidated bool
	writeSeq    uint64
	invalidSeq  uint64
	layers      []*optimisticLayer
}

type optimisticLayer struct {
	id       uint64
	patch    PatchFunc
	snapshot any
	baseSeq  uint64
}

type inflightFetch struct {
	done     chan struct{}
	startSeq uint64
	epoch    uint64
	val      any
	err      error
}

// NewResponseCache creates an empty cache. Entries not read for gcAfter are
// removed by Prune.
func NewResponseCache(logger domain.Logger, gcAfter time.Duration) *ResponseCache {
	return &ResponseCache{
		logger:   logger,
		now:      time.Now,
		gcAfter:  gcAfter,
		entries:  make(map[string]*cacheEntry),
		inflight: make(map[string]*inflightFetch),
	}
}

// OnRollback registers fn to run after an optimistic layer is rolled back.
func (c *ResponseCache) OnRollback(fn func(domain.CacheKey)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onRollback = append(c.onRollback, fn)
}

// Fetch returns the entry for key when it is fresh and otherwise calls fetch.
// Concurrent callers for one key share a single fetch.
func (c *ResponseCache) Fetch(ctx context.Context, key domain.CacheKey, staleTime time.Duration, fetch FetchFunc) (any, error) {
	k := key.String()

	c.mu.Lock()
	now := c.now()
	e := c.entries[k]
	if e != nil && e.hasBase && !e.invalidated && now.Sub(e.updatedAt) < staleTime {
		e.lastAccess = now
		v, err := e.visible()
		c.mu.Unlock()
		metrics.IncrementCacheLookup(key.Entity, "hit")
		return v, err
	}
	if f := c.inflight[k]; f != nil && (e == nil || f.startSeq > e.invalidSeq) {
		c.mu.Unlock()
		metrics.IncrementCacheLookup(key.Entity, "joined")
		select {
		case <-f.done:
			return f.val, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.seq++
	f := &inflightFetch{done: make(chan struct{}), startSeq: c.seq, epoch: c.epoch}
	c.inflight[k] = f
	c.mu.Unlock()
	metrics.IncrementCacheLookup(key.Entity, "miss")

	fetchCtx := context.WithValue(ctx, contextkeys.CacheKeyKey, k)
	var val any
	// A panicking fetch still settles f, so joined callers are released.
	err := safego.Call(fetchCtx, c.logger, "CacheFetch", func() (fetchErr error) {
		val, fetchErr = fetch(fetchCtx)
		return fetchErr
	})
	if err == nil {
		val, err = c.store(key, f, val)
	} else {
		c.mu.Lock()
		if c.inflight[k] == f {
			delete(c.inflight, k)
		}
		c.mu.Unlock()
	}

	f.val, f.err = val, err
	close(f.done)
	return val, err
}

// store records a fetch result under the sequence rules and returns what the caller should see.
func (c *ResponseCache) store(key domain.CacheKey, f *inflightFetch, val any) (any, error) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[k] == f {
		delete(c.inflight, k)
	}
	if f.epoch != c.epoch {
		return val, nil
	}
	e := c.entry(key)
	if e.writeSeq > f.startSeq {
		metrics.IncrementDiscardedFetch()
		c.logger.Debug(context.Background(), "Discarding fetch older than the cached value", "cache_key", k)
		return val, nil
	}
	c.seq++
	e.base, e.hasBase = val, true
	e.writeSeq = c.seq
	e.updatedAt = c.now()
	e.lastAccess = e.updatedAt
	e.invalidated = e.invalidSeq > f.startSeq
	return e.visible()
}

// Get returns the visible value for key, with optimistic layers applied.
func (c *ResponseCache) Get(key domain.CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key.String()]
	if e == nil || !e.hasBase {
		return nil, false
	}
	v, err := e.visible()
	if err != nil {
		return nil, false
	}
	e.lastAccess = c.now()
	return v, true
}

// Set writes a server-confirmed value and marks it fresh.
func (c *ResponseCache) Set(key domain.CacheKey, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	c.seq++
	e.base, e.hasBase = val, true
	e.writeSeq = c.seq
	e.updatedAt = c.now()
	e.lastAccess = e.updatedAt
	e.invalidated = false
}

// Update rewrites the base value in place. It is a no-op when key holds no value.
func (c *ResponseCache) Update(key domain.CacheKey, fn func(current any) (any, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key.String()]
	if e == nil || !e.hasBase {
		return nil
	}
	next, err := fn(e.base)
	if err != nil {
		return fmt.Errorf("updating %s: %w", key, err)
	}
	c.seq++
	e.base = next
	e.writeSeq = c.seq
	e.lastAccess = c.now()
	return nil
}

// Remove drops the value for key. Fetches already in flight for key are not stored.
func (c *ResponseCache) Remove(key domain.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	c.seq++
	e.base, e.hasBase = nil, false
	e.layers = nil
	e.writeSeq = c.seq
	e.invalidSeq = c.seq
	e.lastAccess = c.now()
}

// Invalidate marks key stale; the next Fetch goes to the server.
func (c *ResponseCache) Invalidate(key domain.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.invalidate(c.entry(key))
}

// InvalidatePrefix marks every key under prefix stale, including keys with a
// fetch in flight but no value yet.
func (c *ResponseCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	for k, e := range c.entries {
		if hasKeyPrefix(k, prefix) {
			c.invalidate(e)
		}
	}
	for k := range c.inflight {
		if _, ok := c.entries[k]; !ok && hasKeyPrefix(k, prefix) {
			c.invalidate(c.entryFromString(k))
		}
	}
}

func (c *ResponseCache) invalidate(e *cacheEntry) {
	e.invalidated = true
	e.invalidSeq = c.seq
}

// Clear drops every entry. Fetches in flight when Clear runs are never stored.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries = make(map[string]*cacheEntry)
	c.inflight = make(map[string]*inflightFetch)
	metrics.SetCacheEntries(0)
}

// Prune removes entries not read since now-gcAfter. Entries with optimistic
// layers or a fetch in flight are kept.
func (c *ResponseCache) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if len(e.layers) > 0 || c.inflight[k] != nil {
			continue
		}
		if now.Sub(e.lastAccess) >= c.gcAfter {
			delete(c.entries, k)
			removed++
		}
	}
	metrics.SetCacheEntries(len(c.entries))
	return removed
}

// Len reports the number of entries, including value-less markers.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Apply pushes an optimistic layer over the visible value of key. It returns
// domain.ErrCacheMiss when key holds no value.
func (c *ResponseCache) Apply(key domain.CacheKey, patch PatchFunc) (OptimisticToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key.String()]
	if e == nil || !e.hasBase {
		return OptimisticToken{}, domain.ErrCacheMiss
	}
	snapshot, err := e.visible()
	if err != nil {
		return OptimisticToken{}, err
	}
	if _, err := patch(snapshot); err != nil {
		return OptimisticToken{}, fmt.Errorf("applying optimistic patch to %s: %w", key, err)
	}
	c.seq++
	layer := &optimisticLayer{id: c.seq, patch: patch, snapshot: snapshot, baseSeq: e.writeSeq}
	e.layers = append(e.layers, layer)
	e.lastAccess = c.now()
	return OptimisticToken{key: key.String(), id: layer.id}, nil
}

// Rollback removes the layer and recomputes the visible value from the base and
// the remaining layers.
func (c *ResponseCache) Rollback(token OptimisticToken) {
	c.mu.Lock()
	e, layer := c.takeLayer(token)
	c.mu.Unlock()
	if layer == nil {
		return
	}
	metrics.IncrementOptimisticRollback(e.key.Entity)
	c.logger.Debug(context.Background(), "Optimistic update rolled back", "cache_key", token.key)

	c.hookMu.Lock()
	hooks := make([]func(domain.CacheKey), len(c.onRollback))
	copy(hooks, c.onRollback)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn(e.key)
	}
}

// Commit folds the layer into the base. When the base was rewritten after the
// layer was applied the layer is dropped instead, since the newer value wins.
func (c *ResponseCache) Commit(token OptimisticToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, layer := c.takeLayer(token)
	if layer == nil || e.writeSeq != layer.baseSeq || !e.hasBase {
		return
	}
	next, err := layer.patch(e.base)
	if err != nil {
		return
	}
	c.seq++
	e.base = next
	e.writeSeq = c.seq
	for _, l := range e.layers {
		l.baseSeq = e.writeSeq
	}
}

func (c *ResponseCache) takeLayer(token OptimisticToken) (*cacheEntry, *optimisticLayer) {
	if !token.Valid() {
		return nil, nil
	}
	e := c.entries[token.key]
	if e == nil {
		return nil, nil
	}
	for i, l := range e.layers {
		if l.id == token.id {
			e.layers = append(e.layers[:i:i], e.layers[i+1:]...)
			return e, l
		}
	}
	return nil, nil
}

func (c *ResponseCache) entry(key domain.CacheKey) *cacheEntry {
	k := key.String()
	e := c.entries[k]
	if e == nil {
		e = &cacheEntry{key: key, lastAccess: c.now()}
		c.entries[k] = e
		metrics.SetCacheEntries(len(c.entries))
	}
	return e
}

func (c *ResponseCache) entryFromString(k string) *cacheEntry {
	entity, _, _ := strings.Cut(k, "/")
	e := &cacheEntry{key: domain.CacheKey{Entity: entity}, lastAccess: c.now()}
	c.entries[k] = e
	return e
}

// visible applies the optimistic layers in order over the base.
func (e *cacheEntry) visible() (any, error) {
	v := e.base
	for _, l := range e.layers {
		next, err := l.patch(v)
		if err != nil {
			return nil, err
		}
		v = next
	}
	return v, nil
}

// hasKeyPrefix matches whole path segments, so "posts/list" does not match "posts/listing".
func hasKeyPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
}

// FetchAs is Fetch with a typed result.
func FetchAs[T any](ctx context.Context, c *ResponseCache, key domain.CacheKey, staleTime time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, staleTime, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s holds %T, not %T", key, v, zero)
	}
	return typed, nil
}

// GetAs is Get with a typed result.
func GetAs[T any](c *ResponseCache, key domain.CacheKey) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// PatchAs adapts a typed patch to PatchFunc.
func PatchAs[T any](fn func(T) T) PatchFunc {
	return func(current any) (any, error) {
		typed, ok := current.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("cannot patch %T as %T", current, zero)
		}
		return fn(typed), nil
	}
}

// BindToSession clears the cache whenever the session ends or changes owner.
func (c *ResponseCache) BindToSession(session *SessionState) (unsubscribe func()) {
	var mu sync.Mutex
	lastUser := userID(session.Snapshot())
	return session.Subscribe(func(change domain.SessionChange) {
		mu.Lock()
		defer mu.Unlock()
		current := userID(change.Session)
		if change.Reason == domain.SessionReasonLogout || current != lastUser {
			c.Clear()
			c.logger.Debug(context.Background(), "Response cache cleared on session change", "reason", string(change.Reason))
		}
		lastUser = current
	})
}

func userID(s domain.Session) string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.User.ID
}
