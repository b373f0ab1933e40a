package oracle

import "sync"

// metrics tracks oracle traffic across all clients in the process, so an
// operator can see how much of a probing budget a run burned and whether
// the provider pushed back.
var metrics struct {
	mu          sync.Mutex
	requests    int64
	retries     int64
	throttles   int64
	cacheHits   int64
	cacheMisses int64
}

// Metrics is a point-in-time snapshot of oracle traffic counters.
type Metrics struct {
	Requests    int64
	Retries     int64
	Throttles   int64
	CacheHits   int64
	CacheMisses int64
}

// SnapshotMetrics returns the current counters.
func SnapshotMetrics() Metrics {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return Metrics{
		Requests:    metrics.requests,
		Retries:     metrics.retries,
		Throttles:   metrics.throttles,
		CacheHits:   metrics.cacheHits,
		CacheMisses: metrics.cacheMisses,
	}
}

// ResetMetrics zeroes the counters. Intended for tests and between runs.
func ResetMetrics() {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	metrics.requests = 0
	metrics.retries = 0
	metrics.throttles = 0
	metrics.cacheHits = 0
	metrics.cacheMisses = 0
}

func recordRequest() {
	metrics.mu.Lock()
	metrics.requests++
	metrics.mu.Unlock()
}

func recordRetry() {
	metrics.mu.Lock()
	metrics.retries++
	metrics.mu.Unlock()
}

func recordThrottle() {
	metrics.mu.Lock()
	metrics.throttles++
	metrics.mu.Unlock()
}

func recordCacheHit() {
	metrics.mu.Lock()
	metrics.cacheHits++
	metrics.mu.Unlock()
}

func recordCacheMiss() {
	metrics.mu.Lock()
	metrics.cacheMisses++
	metrics.mu.Unlock()
}
