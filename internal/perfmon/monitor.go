// Package perfmon records per-tick execution samples in fixed-size rings and
// derives throughput, latency percentiles, trends and issue reports.
package perfmon

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Ring size bounds.
const (
	DefaultWindow = 1000
	MinWindow     = 100
)

// DefaultStabilityThreshold is the |slope| in ms per sample below which the
// update time trend counts as stable.
const DefaultStabilityThreshold = 0.1

// Sample is one measured backend tick.
type Sample struct {
	UpdateTime time.Duration `json:"update_time"`
	MemoryMB   float64       `json:"memory_mb"`
	CPUPercent float64       `json:"cpu_percent"`
	AgentCount int           `json:"agent_count"`
}

// Current is the live performance view.
type Current struct {
	UpdatesPerSecond float64 `json:"updates_per_second"`
	AvgUpdateMS      float64 `json:"avg_update_time_ms"`
	MinUpdateMS      float64 `json:"min_update_time_ms"`
	MaxUpdateMS      float64 `json:"max_update_time_ms"`
	MemoryMB         float64 `json:"memory_usage_mb"`
	CPUPercent       float64 `json:"cpu_usage_percent"`
	AgentCount       int     `json:"agent_count"`
	TotalUpdates     uint64  `json:"total_updates"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Summary extends Current with distribution and trend analysis.
type Summary struct {
	Current        Current `json:"current_metrics"`
	P50MS          float64 `json:"p50_ms"`
	P95MS          float64 `json:"p95_ms"`
	P99MS          float64 `json:"p99_ms"`
	Trend          float64 `json:"update_time_trend"` // ms per sample over the last 10
	Stable         bool    `json:"performance_stable"`
	MaxAgents      int     `json:"max_agents_tested"`
	AvgAgents      float64 `json:"avg_agents"`
	UPSPerAgent    float64 `json:"updates_per_second_per_agent"`
	MemoryPerAgent float64 `json:"memory_per_agent_mb"`
}

// Benchmark aggregates samples whose agent count falls in [Min, Max).
type Benchmark struct {
	Range       string  `json:"range"`
	Min         int     `json:"min_agents"`
	Max         int     `json:"max_agents"` // 0 means unbounded
	Samples     int     `json:"samples"`
	AvgUpdateMS float64 `json:"avg_update_time_ms"`
	AvgAgents   float64 `json:"avg_agents"`
	UPSPerAgent float64 `json:"ups_per_agent"`
}

var benchmarkRanges = [...][2]int{{0, 10}, {10, 50}, {50, 100}, {100, 500}, {500, 1000}, {1000, 0}}

// Severity grades a detected issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one detected performance problem.
type Issue struct {
	Kind      string   `json:"type"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
}

// Export is the raw ring content.
type Export struct {
	UpdateTimesMS []float64 `json:"update_times_ms"`
	MemoryMB      []float64 `json:"memory_usage"`
	CPUPercent    []float64 `json:"cpu_usage"`
	AgentCounts   []int     `json:"agent_counts"`
	TotalUpdates  uint64    `json:"total_updates"`
	Started       time.Time `json:"start_time"`
	LastUpdate    time.Time `json:"last_update_time"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	updates   *Ring[float64] // milliseconds
	memory    *Ring[float64]
	cpu       *Ring[float64]
	agents    *Ring[int]
	total     uint64
	started   time.Time
	last      time.Time
	stability float64
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source used for uptime.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// WithLogger sets the logger for lifecycle records.
func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.log = l } }

// WithStabilityThreshold sets the trend slope counted as stable.
func WithStabilityThreshold(v float64) Option { return func(m *Monitor) { m.stability = v } }

// New creates a monitor keeping window samples per series. Windows below
// MinWindow are raised to it.
func New(window int, opts ...Option) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	window = max(window, MinWindow)
	m := &Monitor{
		updates:   NewRing[float64](window),
		memory:    NewRing[float64](window),
		cpu:       NewRing[float64](window),
		agents:    NewRing[int](window),
		stability: DefaultStabilityThreshold,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.started = m.now()
	m.log.Debug("performance monitor initialized", "window", window)
	return m
}

// Record stores one sample.
func (m *Monitor) Record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates.Push(float64(s.UpdateTime) / float64(time.Millisecond))
	m.memory.Push(s.MemoryMB)
	m.cpu.Push(s.CPUPercent)
	m.agents.Push(s.AgentCount)
	m.total++
	m.last = m.now()
}

// Current returns the live view; all zero before the first sample.
func (m *Monitor) Current() Current {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

func (m *Monitor) current() Current {
	if m.updates.Len() == 0 {
		return Current{}
	}
	times := m.updates.Slice()
	c := Current{
		AvgUpdateMS:   Mean(times),
		MinUpdateMS:   math.Inf(1),
		MaxUpdateMS:   math.Inf(-1),
		MemoryMB:      Mean(m.memory.Slice()),
		CPUPercent:    Mean(m.cpu.Slice()),
		TotalUpdates:  m.total,
		UptimeSeconds: m.now().Sub(m.started).Seconds(),
	}
	for _, v := range times {
		c.MinUpdateMS = min(c.MinUpdateMS, v)
		c.MaxUpdateMS = max(c.MaxUpdateMS, v)
	}
	if c.AvgUpdateMS > 0 {
		c.UpdatesPerSecond = 1000 / c.AvgUpdateMS
	}
	c.AgentCount, _ = m.agents.Last()
	return c
}

// Summary returns percentiles, trend, scalability and efficiency figures.
// ok is false before the first sample.
func (m *Monitor) Summary() (s Summary, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates.Len() == 0 {
		return Summary{}, false
	}
	times := m.updates.Slice()
	s.Current = m.current()
	s.P50MS = Percentile(times, 50)
	s.P95MS = Percentile(times, 95)
	s.P99MS = Percentile(times, 99)
	s.Trend = Slope(m.updates.Tail(10))
	s.Stable = math.Abs(s.Trend) < m.stability

	var agentSum float64
	for _, n := range m.agents.Slice() {
		s.MaxAgents = max(s.MaxAgents, n)
		agentSum += float64(n)
	}
	s.AvgAgents = agentSum / float64(m.agents.Len())
	perAgent := float64(max(1, s.Current.AgentCount))
	s.UPSPerAgent = s.Current.UpdatesPerSecond / perAgent
	s.MemoryPerAgent = s.Current.MemoryMB / perAgent
	return s, true
}

// Benchmarks groups samples by agent-count range, omitting empty ranges.
func (m *Monitor) Benchmarks() []Benchmark {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Benchmark
	for _, rg := range benchmarkRanges {
		b := Benchmark{Min: rg[0], Max: rg[1]}
		if rg[1] == 0 {
			b.Range = fmt.Sprintf("%d+", rg[0])
		} else {
			b.Range = fmt.Sprintf("%d-%d", rg[0], rg[1])
		}
		var timeSum, agentSum float64
		for i, end := 0, m.agents.Len(); i < end; i++ {
			n := m.agents.At(i)
			if n < rg[0] || (rg[1] != 0 && n >= rg[1]) {
				continue
			}
			b.Samples++
			timeSum += m.updates.At(i)
			agentSum += float64(n)
		}
		if b.Samples == 0 {
			continue
		}
		b.AvgUpdateMS = timeSum / float64(b.Samples)
		b.AvgAgents = agentSum / float64(b.Samples)
		if b.AvgUpdateMS > 0 && b.AvgAgents > 0 {
			b.UPSPerAgent = (1000 / b.AvgUpdateMS) / b.AvgAgents
		}
		out = append(out, b)
	}
	return out
}

// Issue thresholds.
const (
	maxAvgUpdateMS   = 100.0
	minUPS           = 10.0
	maxMemoryMB      = 1000.0
	maxCPUPercent    = 80.0
	degradationRatio = 1.5
)

// Issues reports threshold violations and recent degradation.
func (m *Monitor) Issues() []Issue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates.Len() == 0 {
		return nil
	}
	c := m.current()
	var out []Issue
	if c.AvgUpdateMS > maxAvgUpdateMS {
		out = append(out, Issue{"high_update_time", SeverityWarning,
			fmt.Sprintf("average update time is %.1fms, consider optimization", c.AvgUpdateMS), c.AvgUpdateMS, maxAvgUpdateMS})
	}
	if c.UpdatesPerSecond < minUPS {
		out = append(out, Issue{"low_ups", SeverityWarning,
			fmt.Sprintf("updates per second is %.1f, performance may be degraded", c.UpdatesPerSecond), c.UpdatesPerSecond, minUPS})
	}
	if c.MemoryMB > maxMemoryMB {
		out = append(out, Issue{"high_memory", SeverityWarning,
			fmt.Sprintf("memory usage is %.1fMB, consider memory optimization", c.MemoryMB), c.MemoryMB, maxMemoryMB})
	}
	if c.CPUPercent > maxCPUPercent {
		out = append(out, Issue{"high_cpu", SeverityWarning,
			fmt.Sprintf("CPU usage is %.1f%%, system may be overloaded", c.CPUPercent), c.CPUPercent, maxCPUPercent})
	}
	if n := m.updates.Len(); n >= 10 {
		recent := Mean(m.updates.Tail(10))
		older := recent
		if n >= 20 {
			older = Mean(m.updates.Tail(20)[:10])
		}
		if older > 0 && recent > older*degradationRatio {
			out = append(out, Issue{"performance_degradation", SeverityError,
				fmt.Sprintf("performance degraded by %.1f%%", (recent/older-1)*100), recent / older, degradationRatio})
		}
	}
	return out
}

// Recommendations returns tuning hints for the current figures.
func (m *Monitor) Recommendations() []string {
	c := m.Current()
	var out []string
	if c.MemoryMB > 500 {
		out = append(out, "reduce agent count or optimize memory usage")
	}
	if c.CPUPercent > 70 {
		out = append(out, "use the native backend for better CPU performance")
	}
	if c.AvgUpdateMS > 50 {
		out = append(out, "optimize simulation rules or reduce complexity")
	}
	if c.AgentCount > 1000 {
		out = append(out, "use spatial partitioning for large agent counts")
	}
	if c.UpdatesPerSecond < 20 {
		out = append(out, "raise worker parallelism or use the native backend")
	}
	return out
}

// Reset clears all samples and restarts the uptime clock.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates.Clear()
	m.memory.Clear()
	m.cpu.Clear()
	m.agents.Clear()
	m.total = 0
	m.started = m.now()
	m.last = time.Time{}
	m.log.Debug("performance monitor reset")
}

// Export copies the raw series.
func (m *Monitor) Export() Export {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Export{
		UpdateTimesMS: m.updates.Slice(),
		MemoryMB:      m.memory.Slice(),
		CPUPercent:    m.cpu.Slice(),
		AgentCounts:   m.agents.Slice(),
		TotalUpdates:  m.total,
		Started:       m.started,
		LastUpdate:    m.last,
	}
}
