package perfmon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Monitor as Prometheus gauges, computed on scrape.
type Collector struct {
	m *Monitor

	ups      *prometheus.Desc
	avg      *prometheus.Desc
	quantile *prometheus.Desc
	memory   *prometheus.Desc
	cpu      *prometheus.Desc
	agents   *prometheus.Desc
	total    *prometheus.Desc
	backend  *prometheus.Desc

	backendKind func() string
}

// NewCollector wraps m. backendKind, when non-nil, reports the active
// backend as a label on citysim_backend_info.
func NewCollector(m *Monitor, backendKind func() string) *Collector {
	return &Collector{
		m: m,
		ups: prometheus.NewDesc("citysim_updates_per_second",
			"Backend ticks per second derived from the mean update time.", nil, nil),
		avg: prometheus.NewDesc("citysim_update_time_ms",
			"Mean backend update time in milliseconds over the monitor window.", nil, nil),
		quantile: prometheus.NewDesc("citysim_update_time_quantile_ms",
			"Backend update time percentiles in milliseconds.", []string{"quantile"}, nil),
		memory: prometheus.NewDesc("citysim_memory_estimate_mb",
			"Mean estimated memory use in megabytes.", nil, nil),
		cpu: prometheus.NewDesc("citysim_cpu_estimate_percent",
			"Mean estimated CPU use in percent.", nil, nil),
		agents: prometheus.NewDesc("citysim_agents",
			"Agent count at the last recorded tick.", nil, nil),
		total: prometheus.NewDesc("citysim_updates_total",
			"Backend ticks recorded since the last reset.", nil, nil),
		backend: prometheus.NewDesc("citysim_backend_info",
			"Active execution backend.", []string{"backend"}, nil),
		backendKind: backendKind,
	}
}

// Register adds the collector to reg (the default registerer when nil).
func (c *Collector) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(c)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.ups, c.avg, c.quantile, c.memory, c.cpu, c.agents, c.total, c.backend} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cur := c.m.Current()
	ch <- prometheus.MustNewConstMetric(c.ups, prometheus.GaugeValue, cur.UpdatesPerSecond)
	ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, cur.AvgUpdateMS)
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, cur.MemoryMB)
	ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, cur.CPUPercent)
	ch <- prometheus.MustNewConstMetric(c.agents, prometheus.GaugeValue, float64(cur.AgentCount))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(cur.TotalUpdates))

	if s, ok := c.m.Summary(); ok {
		ch <- prometheus.MustNewConstMetric(c.quantile, prometheus.GaugeValue, s.P50MS, "0.5")
		ch <- prometheus.MustNewConstMetric(c.quantile, prometheus.GaugeValue, s.P95MS, "0.95")
		ch <- prometheus.MustNewConstMetric(c.quantile, prometheus.GaugeValue, s.P99MS, "0.99")
	}
	if c.backendKind != nil {
		ch <- prometheus.MustNewConstMetric(c.backend, prometheus.GaugeValue, 1, c.backendKind())
	}
}
