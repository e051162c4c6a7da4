package perfmon

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func ms(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }

func TestPercentile_MatchesSortedIndexReference(t *testing.T) {
	for _, n := range []int{1, 2, 7, 50, 99, 100, 101, 1000} {
		data := make([]float64, n)
		for i := range data {
			data[i] = float64((i * 37) % (n + 3))
		}
		sorted := slices.Clone(data)
		slices.Sort(sorted)
		for _, p := range []float64{0, 50, 95, 99, 100} {
			idx := min(int(p/100*float64(n)), n-1)
			assert.Equal(t, sorted[idx], Percentile(data, p), "n=%d p=%v", n, p)
		}
	}
	assert.Zero(t, Percentile(nil, 50))
}

func TestSlope(t *testing.T) {
	assert.InDelta(t, 2, Slope([]float64{1, 3, 5, 7}), 1e-9)
	assert.InDelta(t, 0, Slope([]float64{4, 4, 4}), 1e-9)
	assert.Zero(t, Slope([]float64{1}))
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{2, 3, 4}, r.Slice())
	assert.Equal(t, []int{3, 4}, r.Tail(2))
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 4, last)
	r.Clear()
	assert.Zero(t, r.Len())
}

func TestMonitor_CurrentAndSummary(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	m := New(100, WithClock(clk.now))

	_, ok := m.Summary()
	assert.False(t, ok)
	assert.Zero(t, m.Current())

	for _, v := range []float64{10, 20, 30, 40} {
		m.Record(Sample{UpdateTime: ms(v), MemoryMB: 5, CPUPercent: 40, AgentCount: 50})
	}
	clk.t = clk.t.Add(3 * time.Second)

	c := m.Current()
	assert.InDelta(t, 25, c.AvgUpdateMS, 1e-6)
	assert.InDelta(t, 10, c.MinUpdateMS, 1e-6)
	assert.InDelta(t, 40, c.MaxUpdateMS, 1e-6)
	assert.InDelta(t, 40, c.UpdatesPerSecond, 1e-6)
	assert.Equal(t, 50, c.AgentCount)
	assert.Equal(t, uint64(4), c.TotalUpdates)
	assert.InDelta(t, 3, c.UptimeSeconds, 1e-9)

	s, ok := m.Summary()
	require.True(t, ok)
	assert.InDelta(t, 30, s.P50MS, 1e-6)
	assert.InDelta(t, 40, s.P99MS, 1e-6)
	assert.InDelta(t, 10, s.Trend, 1e-6)
	assert.False(t, s.Stable)
	assert.Equal(t, 50, s.MaxAgents)
}

func TestMonitor_WindowBounded(t *testing.T) {
	m := New(10) // raised to MinWindow
	for i := 0; i < 250; i++ {
		m.Record(Sample{UpdateTime: ms(float64(i)), AgentCount: i})
	}
	ex := m.Export()
	assert.Len(t, ex.UpdateTimesMS, MinWindow)
	assert.Equal(t, uint64(250), ex.TotalUpdates)
	assert.InDelta(t, 150, ex.UpdateTimesMS[0], 1e-6)
}

func TestMonitor_Benchmarks(t *testing.T) {
	m := New(100)
	m.Record(Sample{UpdateTime: ms(1), AgentCount: 5})
	m.Record(Sample{UpdateTime: ms(3), AgentCount: 5})
	m.Record(Sample{UpdateTime: ms(10), AgentCount: 2000})

	b := m.Benchmarks()
	require.Len(t, b, 2)
	assert.Equal(t, "0-10", b[0].Range)
	assert.Equal(t, 2, b[0].Samples)
	assert.InDelta(t, 2, b[0].AvgUpdateMS, 1e-6)
	assert.Equal(t, "1000+", b[1].Range)
	assert.Equal(t, 1, b[1].Samples)
}

func TestMonitor_IssuesAndRecommendations(t *testing.T) {
	m := New(100)
	for i := 0; i < 10; i++ {
		m.Record(Sample{UpdateTime: ms(10), MemoryMB: 10, CPUPercent: 70, AgentCount: 10})
	}
	assert.Empty(t, m.Issues())

	for i := 0; i < 10; i++ {
		m.Record(Sample{UpdateTime: ms(300), MemoryMB: 2000, CPUPercent: 95, AgentCount: 2000})
	}
	kinds := map[string]Severity{}
	for _, is := range m.Issues() {
		kinds[is.Kind] = is.Severity
	}
	assert.Equal(t, SeverityWarning, kinds["high_update_time"])
	assert.Equal(t, SeverityWarning, kinds["high_memory"])
	assert.Equal(t, SeverityWarning, kinds["high_cpu"])
	assert.Equal(t, SeverityError, kinds["performance_degradation"])
	assert.Len(t, m.Recommendations(), 5)

	m.Reset()
	assert.Empty(t, m.Issues())
	assert.Zero(t, m.Current().TotalUpdates)
}

func TestCollector_ExportsGauges(t *testing.T) {
	m := New(100)
	m.Record(Sample{UpdateTime: ms(20), MemoryMB: 3, CPUPercent: 12, AgentCount: 30})

	reg := prometheus.NewRegistry()
	c := NewCollector(m, func() string { return "native" })
	require.NoError(t, c.Register(reg))

	expected := `
# HELP citysim_agents Agent count at the last recorded tick.
# TYPE citysim_agents gauge
citysim_agents 30
# HELP citysim_updates_total Backend ticks recorded since the last reset.
# TYPE citysim_updates_total counter
citysim_updates_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"citysim_agents", "citysim_updates_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var info *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "citysim_backend_info" {
			info = f
		}
	}
	require.NotNil(t, info)
	require.Len(t, info.GetMetric(), 1)
	assert.Equal(t, "native", info.GetMetric()[0].GetLabel()[0].GetValue())
	assert.Equal(t, 3, testutil.CollectAndCount(c, "citysim_update_time_quantile_ms"))
}
