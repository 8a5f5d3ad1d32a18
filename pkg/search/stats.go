package search

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of the engine's performance counters.
// Times are in seconds.
type Stats struct {
	TotalSearches   int64   `json:"total_searches"`
	TotalSearchTime float64 `json:"total_search_time"`
	CacheHits       int64   `json:"cache_hits"`
	CacheMisses     int64   `json:"cache_misses"`
	AvgSearchTime   float64 `json:"avg_search_time"`
	LastReset       string  `json:"last_reset"`
	CacheSize       int     `json:"cache_size"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
}

// stats accumulates search counters behind a mutex held only for the
// counter mutation, never during I/O.
type stats struct {
	mu              sync.Mutex
	totalSearches   int64
	totalSearchTime float64
	cacheHits       int64
	cacheMisses     int64
	lastReset       time.Time
}

func newStats() *stats {
	return &stats{lastReset: time.Now()}
}

func (s *stats) recordSearch(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSearches++
	s.totalSearchTime += elapsed.Seconds()
}

func (s *stats) recordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheHits++
}

func (s *stats) recordCacheMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheMisses++
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSearches = 0
	s.totalSearchTime = 0
	s.cacheHits = 0
	s.cacheMisses = 0
	s.lastReset = time.Now()
}

func (s *stats) snapshot(cacheSize int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := 0.0
	if s.totalSearches > 0 {
		avg = s.totalSearchTime / float64(s.totalSearches)
	}

	hitTotal := s.cacheHits + s.cacheMisses
	if hitTotal < 1 {
		hitTotal = 1
	}

	return Stats{
		TotalSearches:   s.totalSearches,
		TotalSearchTime: s.totalSearchTime,
		CacheHits:       s.cacheHits,
		CacheMisses:     s.cacheMisses,
		AvgSearchTime:   avg,
		LastReset:       s.lastReset.Format(time.RFC3339Nano),
		CacheSize:       cacheSize,
		CacheHitRate:    float64(s.cacheHits) / float64(hitTotal),
	}
}

// Stats returns a snapshot of the running performance counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot(e.cache.len())
}

// ResetStats zeroes the performance counters and marks the reset time. The
// parse cache is left alone.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

// InvalidateCache drops every cached parse, forcing the next search to
// re-read the store.
func (e *Engine) InvalidateCache() {
	e.cache.purge()
}
