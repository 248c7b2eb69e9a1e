// Package metrics provides application-level counters for the session
// lifecycle. Counters are plain atomics; Collector exposes them to Prometheus.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// Synchronization
	syncsTotal   atomic.Int64
	syncsSkipped atomic.Int64
	syncErrors   atomic.Int64
	syncNanos    atomic.Int64

	// Authorization lookups
	authLookups      atomic.Int64
	authLookupErrors atomic.Int64

	// Engine bring-up
	engineInits      atomic.Int64
	engineInitErrors atomic.Int64

	// Federation membership
	federationsJoined  atomic.Int64
	federationsRemoved atomic.Int64
	federationErrors   atomic.Int64

	// Balance snapshot cache
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordSync records a completed synchronization attempt.
func (m *Metrics) RecordSync(duration time.Duration, err error) {
	m.syncsTotal.Add(1)
	m.syncNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.syncErrors.Add(1)
	}
}

// RecordSyncSkipped records a sync request dropped because one was running
// or no engine was available.
func (m *Metrics) RecordSyncSkipped() {
	m.syncsSkipped.Add(1)
}

// RecordAuthLookup records a remote authorization lookup.
func (m *Metrics) RecordAuthLookup(err error) {
	m.authLookups.Add(1)
	if err != nil {
		m.authLookupErrors.Add(1)
	}
}

// RecordEngineInit records an engine bring-up attempt.
func (m *Metrics) RecordEngineInit(err error) {
	m.engineInits.Add(1)
	if err != nil {
		m.engineInitErrors.Add(1)
	}
}

// RecordFederationJoin records an attempt to join a federation.
func (m *Metrics) RecordFederationJoin(err error) {
	if err != nil {
		m.federationErrors.Add(1)
		return
	}
	m.federationsJoined.Add(1)
}

// RecordFederationRemove records an attempt to leave a federation.
func (m *Metrics) RecordFederationRemove(err error) {
	if err != nil {
		m.federationErrors.Add(1)
		return
	}
	m.federationsRemoved.Add(1)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	SyncsTotal         int64 `json:"syncs_total"`
	SyncsSkipped       int64 `json:"syncs_skipped"`
	SyncErrors         int64 `json:"sync_errors"`
	SyncNanos          int64 `json:"sync_nanos"`
	AuthLookups        int64 `json:"auth_lookups"`
	AuthLookupErrors   int64 `json:"auth_lookup_errors"`
	EngineInits        int64 `json:"engine_inits"`
	EngineInitErrors   int64 `json:"engine_init_errors"`
	FederationsJoined  int64 `json:"federations_joined"`
	FederationsRemoved int64 `json:"federations_removed"`
	FederationErrors   int64 `json:"federation_errors"`
	CacheHits          int64 `json:"cache_hits"`
	CacheMisses        int64 `json:"cache_misses"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		SyncsTotal:         m.syncsTotal.Load(),
		SyncsSkipped:       m.syncsSkipped.Load(),
		SyncErrors:         m.syncErrors.Load(),
		SyncNanos:          m.syncNanos.Load(),
		AuthLookups:        m.authLookups.Load(),
		AuthLookupErrors:   m.authLookupErrors.Load(),
		EngineInits:        m.engineInits.Load(),
		EngineInitErrors:   m.engineInitErrors.Load(),
		FederationsJoined:  m.federationsJoined.Load(),
		FederationsRemoved: m.federationsRemoved.Load(),
		FederationErrors:   m.federationErrors.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
	}
}

// SyncLatencyAvgMs returns the average synchronization latency in
// milliseconds, or 0 before the first sync.
func (m *Metrics) SyncLatencyAvgMs() float64 {
	n := m.syncsTotal.Load()
	if n == 0 {
		return 0
	}
	return float64(m.syncNanos.Load()) / float64(n) / 1e6
}

// CacheHitRate returns the cache hit rate as a percentage (0-100).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.syncsTotal, &m.syncsSkipped, &m.syncErrors, &m.syncNanos,
		&m.authLookups, &m.authLookupErrors,
		&m.engineInits, &m.engineInitErrors,
		&m.federationsJoined, &m.federationsRemoved, &m.federationErrors,
		&m.cacheHits, &m.cacheMisses,
	} {
		c.Store(0)
	}
}
