package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fedwallet"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) float64
}

// Collector adapts a Metrics instance to the prometheus.Collector interface.
// Values are read from a Snapshot on every scrape.
type Collector struct {
	m     *Metrics
	descs []counterDesc
}

// NewCollector returns a collector for m.
func NewCollector(m *Metrics) *Collector {
	counter := func(name, help string, value func(Snapshot) float64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			value: value,
		}
	}
	return &Collector{
		m: m,
		descs: []counterDesc{
			counter("syncs_total", "Completed synchronization attempts.",
				func(s Snapshot) float64 { return float64(s.SyncsTotal) }),
			counter("syncs_skipped_total", "Synchronization requests dropped while one was running or no engine existed.",
				func(s Snapshot) float64 { return float64(s.SyncsSkipped) }),
			counter("sync_errors_total", "Synchronization attempts that failed.",
				func(s Snapshot) float64 { return float64(s.SyncErrors) }),
			counter("sync_duration_seconds_total", "Cumulative time spent synchronizing.",
				func(s Snapshot) float64 { return float64(s.SyncNanos) / 1e9 }),
			counter("auth_lookups_total", "Remote authorization lookups.",
				func(s Snapshot) float64 { return float64(s.AuthLookups) }),
			counter("auth_lookup_errors_total", "Remote authorization lookups that failed.",
				func(s Snapshot) float64 { return float64(s.AuthLookupErrors) }),
			counter("engine_inits_total", "Engine bring-up attempts.",
				func(s Snapshot) float64 { return float64(s.EngineInits) }),
			counter("engine_init_errors_total", "Engine bring-up attempts that failed.",
				func(s Snapshot) float64 { return float64(s.EngineInitErrors) }),
			counter("federations_joined_total", "Federations joined.",
				func(s Snapshot) float64 { return float64(s.FederationsJoined) }),
			counter("federations_removed_total", "Federations removed.",
				func(s Snapshot) float64 { return float64(s.FederationsRemoved) }),
			counter("federation_errors_total", "Failed federation join or remove attempts.",
				func(s Snapshot) float64 { return float64(s.FederationErrors) }),
			counter("cache_hits_total", "Balance snapshot cache hits.",
				func(s Snapshot) float64 { return float64(s.CacheHits) }),
			counter("cache_misses_total", "Balance snapshot cache misses.",
				func(s Snapshot) float64 { return float64(s.CacheMisses) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()
	for _, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, d.value(snap))
	}
}

// NewRegistry returns a registry holding a collector for m plus the standard
// Go runtime and process collectors.
func NewRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
