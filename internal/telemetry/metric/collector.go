package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time view of server state read at scrape time.
type Stats struct {
	LiveConnections int
	Plugins         map[string]int
}

// Collector reports Stats gathered from a callback on every scrape.
type Collector struct {
	stats       func() Stats
	connections *prometheus.Desc
	plugins     *prometheus.Desc
}

// NewCollector creates a collector reading from stats.
func NewCollector(stats func() Stats) *Collector {
	return &Collector{
		stats: stats,
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tracked_connections"),
			"Connections tracked by the server context.",
			nil, nil),
		plugins: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "registered_plugins"),
			"Plugins in the subscription registry.",
			[]string{"kind"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.plugins
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.LiveConnections))
	for kind, n := range s.Plugins {
		ch <- prometheus.MustNewConstMetric(c.plugins, prometheus.GaugeValue, float64(n), kind)
	}
}
