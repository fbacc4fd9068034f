package application

import (
	"context"
	"sync"
	"time"

	"gitlab.com/timkado/api/social-feed-client/internal/adapters/config"
	"gitlab.com/timkado/api/social-feed-client/internal/domain"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// CacheJanitor periodically prunes response cache entries nobody has read recently.
type CacheJanitor struct {
	cache          *ResponseCache
	configProvider config.Provider
	logger         domain.Logger

	stopChan  chan struct{}
	stopMutex sync.Mutex
	stopped   bool
	started   bool
	wg        sync.WaitGroup
}

func NewCacheJanitor(cache *ResponseCache, configProvider config.Provider, logger domain.Logger) *CacheJanitor {
	return &CacheJanitor{
		cache:          cache,
		configProvider: configProvider,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the prune loop. It returns immediately.
func (j *CacheJanitor) Start(appCtx context.Context) {
	interval := time.Duration(j.configProvider.Get().Cache.PruneIntervalSeconds) * time.Second
	if interval <= 0 {
		j.logger.Warn(appCtx, "Cache prune interval is not configured or invalid; prune loop will not start.", "intervalSeconds", j.configProvider.Get().Cache.PruneIntervalSeconds)
		return
	}

	j.stopMutex.Lock()
	if j.started || j.stopped {
		j.stopMutex.Unlock()
		return
	}
	j.started = true
	j.stopMutex.Unlock()

	j.logger.Info(appCtx, "Starting cache prune loop", "interval", interval.String())
	j.wg.Add(1)
	safego.Execute(appCtx, j.logger, "CachePruneLoop", func() {
		defer j.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				if removed := j.cache.Prune(now); removed > 0 {
					j.logger.Debug(appCtx, "Cache prune tick completed", "removed", removed, "remaining", j.cache.Len())
				}
			case <-j.stopChan:
				j.logger.Info(appCtx, "Cache prune loop stopping as requested.")
				return
			case <-appCtx.Done():
				j.logger.Info(appCtx, "Cache prune loop stopping due to application context cancellation.")
				return
			}
		}
	})
}

// Stop signals the prune loop to stop and waits for it to finish. Safe to call more than once.
func (j *CacheJanitor) Stop() {
	j.stopMutex.Lock()
	defer j.stopMutex.Unlock()
	if j.stopped {
		return
	}
	close(j.stopChan)
	j.stopped = true
	j.wg.Wait()
}
