package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const pruneTimeout = 5 * time.Minute

// Pruner removes cache entries older than a given age.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// CleanupConfig sets how stale an entry may get and how often the scheduler sweeps.
type CleanupConfig struct {
	// MaxAge is the age after which cache entries are deleted even if never read.
	MaxAge time.Duration

	CleanupInterval time.Duration
}

// DefaultCleanupConfig sweeps every 10 minutes for entries older than 2 hours.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		MaxAge:          2 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// CleanupScheduler periodically drops stale disk cache entries that no read
// has expired.
type CleanupScheduler struct {
	cache     Pruner
	config    CleanupConfig
	log       *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	running   bool
	mu        sync.Mutex
}

// NewCleanupScheduler fills zero config fields from DefaultCleanupConfig.
func NewCleanupScheduler(cache Pruner, config CleanupConfig, logger *zap.Logger) *CleanupScheduler {
	d := DefaultCleanupConfig()
	if config.MaxAge == 0 {
		config.MaxAge = d.MaxAge
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = d.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CleanupScheduler{
		cache:  cache,
		config: config,
		log:    logger.Named("cleanup"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it twice is a no-op.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ticker = time.NewTicker(s.config.CleanupInterval)
	s.mu.Unlock()

	s.log.Info("started",
		zap.Duration("interval", s.config.CleanupInterval),
		zap.Duration("max_age", s.config.MaxAge),
	)

	go s.run()
}

func (s *CleanupScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.log.Info("stopped")
			return
		}
	}
}

func (s *CleanupScheduler) sweep() {
	removed, err := s.RunNow()
	if err != nil {
		s.log.Warn("cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("removed stale cache entries", zap.Int("count", removed))
	}
}

// Stop ends the loop; safe to call more than once.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.running = false
	})
}

// RunNow prunes synchronously and reports how many entries were removed.
func (s *CleanupScheduler) RunNow() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	return s.cache.Prune(ctx, s.config.MaxAge)
}
