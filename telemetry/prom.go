package telemetry

import "github.com/prometheus/client_golang/prometheus"

// PromCollector exports a PercentileAggregator's current snapshot as
// Prometheus gauges, keeping the metrics state (PercentileAggregator)
// separate from the transport that exports it — the same separation
// the teacher draws between api.Metrics and whatever serializes it,
// just retargeted at a Prometheus registry instead of a JSON HTTP
// response.
type PromCollector struct {
	agg  *PercentileAggregator
	name string

	p50   *prometheus.Desc
	p95   *prometheus.Desc
	p99   *prometheus.Desc
	count *prometheus.Desc
}

// NewPromCollector wraps agg for the given metric family name (e.g.
// "decode_latency_ms").
func NewPromCollector(name string, agg *PercentileAggregator) *PromCollector {
	mk := func(suffix, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			"qmfrt_"+name+"_"+suffix,
			help,
			nil,
			prometheus.Labels{"metric": name},
		)
	}
	return &PromCollector{
		agg:   agg,
		name:  name,
		p50:   mk("p50", "50th percentile"),
		p95:   mk("p95", "95th percentile"),
		p99:   mk("p99", "99th percentile"),
		count: mk("sample_count", "number of samples in the current window"),
	}
}

// Describe implements prometheus.Collector.
func (c *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.p50
	ch <- c.p95
	ch <- c.p99
	ch <- c.count
}

// Collect implements prometheus.Collector, sampling the underlying
// aggregator on every scrape rather than caching.
func (c *PromCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.agg.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.p50, prometheus.GaugeValue, snap.P50)
	ch <- prometheus.MustNewConstMetric(c.p95, prometheus.GaugeValue, snap.P95)
	ch <- prometheus.MustNewConstMetric(c.p99, prometheus.GaugeValue, snap.P99)
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(snap.Count))
}
