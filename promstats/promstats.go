// Package promstats exposes a cache's activity counters as Prometheus
// metrics. It lives in its own package so callers without Prometheus
// do not pull the client library in.
package promstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pantrykv/pantry"
)

// Source yields cache statistics. *pantry.Cache implements it.
type Source interface {
	Stats() pantry.Stats
}

// Collector reads a Source on every scrape and reports its counters.
// Register it like any other collector:
//
//	reg.MustRegister(promstats.NewCollector(c, ""))
type Collector struct {
	src Source

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	writes    *prometheus.Desc
	evictions *prometheus.Desc
	errs      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector over src. The namespace prefixes
// every metric name; empty means "pantry".
func NewCollector(src Source, namespace string) *Collector {
	if namespace == "" {
		namespace = "pantry"
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, nil)
	}
	return &Collector{
		src:       src,
		hits:      desc("hits_total", "Single reads that found a valid entry."),
		misses:    desc("misses_total", "Single reads that found nothing valid."),
		writes:    desc("writes_total", "Successful upserts, renewals excluded."),
		evictions: desc("evictions_total", "Expired entries removed lazily or by sweeps."),
		errs:      desc("errors_total", "Swallowed storage failures and corrupt payloads."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.writes
	ch <- c.evictions
	ch <- c.errs
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.writes, prometheus.CounterValue, float64(s.Writes))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.errs, prometheus.CounterValue, float64(s.Errors))
}
