package utils

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/domain"
)

// ServiceMetrics tracks client-side counters observed during benchmarks
type ServiceMetrics struct {
	Requests          int64
	Unauthorized      int64
	RefreshCycles     int64
	CacheHits         int64
	CacheMisses       int64
	OptimisticApplied int64
	Rollbacks         int64
	SessionEvents     int64
}

// BenchmarkRunner provides utilities for running benchmarks with metrics collection
type BenchmarkRunner struct {
	startTime      time.Time
	endTime        time.Time
	memStatsStart  runtime.MemStats
	memStatsEnd    runtime.MemStats
	goroutineStart int
	goroutineEnd   int

	// Custom metrics
	operationCount int64
	errorCount     int64

	mu sync.RWMutex
}

// NewBenchmarkRunner creates a new benchmark runner
func NewBenchmarkRunner() *BenchmarkRunner {
	return &BenchmarkRunner{}
}

// Start begins the benchmark measurement
func (br *BenchmarkRunner) Start() {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.startTime = time.Now()
	br.goroutineStart = runtime.NumGoroutine()

	runtime.GC()
	runtime.ReadMemStats(&br.memStatsStart)
}

// Stop ends the benchmark measurement
func (br *BenchmarkRunner) Stop() {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.endTime = time.Now()
	br.goroutineEnd = runtime.NumGoroutine()

	runtime.GC()
	runtime.ReadMemStats(&br.memStatsEnd)
}

// IncrementOperations increments the operation counter
func (br *BenchmarkRunner) IncrementOperations(count int64) {
	atomic.AddInt64(&br.operationCount, count)
}

// IncrementErrors increments the error counter
func (br *BenchmarkRunner) IncrementErrors(count int64) {
	atomic.AddInt64(&br.errorCount, count)
}

// GetResults returns the benchmark results
func (br *BenchmarkRunner) GetResults() *BenchmarkResults {
	br.mu.RLock()
	defer br.mu.RUnlock()

	duration := br.endTime.Sub(br.startTime)
	operations := atomic.LoadInt64(&br.operationCount)
	errors := atomic.LoadInt64(&br.errorCount)

	var opsPerSecond float64
	if duration.Seconds() > 0 {
		opsPerSecond = float64(operations) / duration.Seconds()
	}

	return &BenchmarkResults{
		Duration:            duration,
		Operations:          operations,
		Errors:              errors,
		OperationsPerSecond: opsPerSecond,
		MemoryAllocated:     br.memStatsEnd.TotalAlloc - br.memStatsStart.TotalAlloc,
		MemoryAllocations:   br.memStatsEnd.Mallocs - br.memStatsStart.Mallocs,
		GoroutineStart:      br.goroutineStart,
		GoroutineEnd:        br.goroutineEnd,
		GoroutineLeak:       br.goroutineEnd - br.goroutineStart,
	}
}

// BenchmarkResults holds the results of a benchmark run
type BenchmarkResults struct {
	Duration            time.Duration `json:"duration_ns"`
	Operations          int64         `json:"operations"`
	Errors              int64         `json:"errors"`
	OperationsPerSecond float64       `json:"operations_per_second"`
	MemoryAllocated     uint64        `json:"memory_allocated_bytes"`
	MemoryAllocations   uint64        `json:"memory_allocations"`
	GoroutineStart      int           `json:"goroutine_start"`
	GoroutineEnd        int           `json:"goroutine_end"`
	GoroutineLeak       int           `json:"goroutine_leak"`
}

// String returns a human-readable representation of the results
func (br *BenchmarkResults) String() string {
	return fmt.Sprintf(
		"Duration: %v, Ops: %d, Errors: %d, Ops/sec: %.2f, Memory: %d bytes, Allocs: %d, Goroutines: %d->%d (leak: %d)",
		br.Duration,
		br.Operations,
		br.Errors,
		br.OperationsPerSecond,
		br.MemoryAllocated,
		br.MemoryAllocations,
		br.GoroutineStart,
		br.GoroutineEnd,
		br.GoroutineLeak,
	)
}

// NewServiceMetrics creates a new service metrics tracker
func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{}
}

// UpdateTransportMetrics records backend traffic seen by the mock transport
func (sm *ServiceMetrics) UpdateTransportMetrics(requests, unauthorized, refreshes int64) {
	atomic.AddInt64(&sm.Requests, requests)
	atomic.AddInt64(&sm.Unauthorized, unauthorized)
	atomic.AddInt64(&sm.RefreshCycles, refreshes)
}

// UpdateCacheMetrics records response cache hits and misses
func (sm *ServiceMetrics) UpdateCacheMetrics(hits, misses int64) {
	atomic.AddInt64(&sm.CacheHits, hits)
	atomic.AddInt64(&sm.CacheMisses, misses)
}

// UpdateOptimisticMetrics records optimistic layers applied and rolled back
func (sm *ServiceMetrics) UpdateOptimisticMetrics(applied, rolledBack int64) {
	atomic.AddInt64(&sm.OptimisticApplied, applied)
	atomic.AddInt64(&sm.Rollbacks, rolledBack)
}

// UpdateSessionMetrics records session events delivered to peers
func (sm *ServiceMetrics) UpdateSessionMetrics(events int64) {
	atomic.AddInt64(&sm.SessionEvents, events)
}

// GetSnapshot returns a snapshot of current metrics
func (sm *ServiceMetrics) GetSnapshot() ServiceMetrics {
	return ServiceMetrics{
		Requests:          atomic.LoadInt64(&sm.Requests),
		Unauthorized:      atomic.LoadInt64(&sm.Unauthorized),
		RefreshCycles:     atomic.LoadInt64(&sm.RefreshCycles),
		CacheHits:         atomic.LoadInt64(&sm.CacheHits),
		CacheMisses:       atomic.LoadInt64(&sm.CacheMisses),
		OptimisticApplied: atomic.LoadInt64(&sm.OptimisticApplied),
		Rollbacks:         atomic.LoadInt64(&sm.Rollbacks),
		SessionEvents:     atomic.LoadInt64(&sm.SessionEvents),
	}
}

// PostGenerator creates feed fixtures
type PostGenerator struct {
	counter int64
}

// NewPostGenerator creates a new post generator
func NewPostGenerator() *PostGenerator {
	return &PostGenerator{}
}

// GeneratePost returns a published post with a unique id
func (pg *PostGenerator) GeneratePost(likes int) domain.Post {
	n := atomic.AddInt64(&pg.counter, 1)
	now := time.Now().UTC().Format(time.RFC3339)
	return domain.Post{
		ID:          fmt.Sprintf("post_%d", n),
		Title:       fmt.Sprintf("Benchmark post %d", n),
		Content:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
		IsPublished: true,
		Author:      domain.Author{ID: "user_bench", Name: "Bench User"},
		LikesCount:  likes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// GeneratePage returns a list response holding count posts
func (pg *PostGenerator) GeneratePage(page, count int) *domain.PaginatedPostsResponse {
	posts := make([]domain.Post, count)
	for i := range posts {
		posts[i] = pg.GeneratePost(i)
	}
	return &domain.PaginatedPostsResponse{
		Data: posts,
		Meta: domain.PaginationMeta{
			Page:        page,
			Limit:       count,
			Total:       count * 10,
			TotalPages:  10,
			HasNextPage: page < 10,
		},
	}
}

// RunConcurrently starts workers goroutines running fn and waits for all of them
func RunConcurrently(workers int, fn func(workerID int)) {
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer wg.Done()
			fn(id)
		}(i)
	}
	wg.Wait()
}
