package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/metrics"
	"github.com/talgya/mini-city/internal/scenario"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func openTemp(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "city.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(cycle uint64) metrics.Snapshot {
	snap := metrics.Snapshot{
		Cycle:               cycle,
		SimTime:             epoch.Add(time.Duration(cycle) * time.Hour),
		Population:          50,
		CitizenSatisfaction: 0.6,
		EconomicHealth:      0.4,
		ActiveEvents:        1,
	}
	snap.Counts[agents.TypeCitizen] = 50
	snap.Counts[agents.TypeBusiness] = 10
	return snap
}

func TestOpen_WritesSchemaVersion(t *testing.T) {
	s := openTemp(t, 10)
	v, err := s.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestLatestSummary_Empty(t *testing.T) {
	s := openTemp(t, 10)
	_, err := s.LatestSummary()
	assert.ErrorIs(t, err, ErrNoSummary)
}

func TestSaveSummary_RoundTrip(t *testing.T) {
	s := openTemp(t, 10)
	saved := epoch.Add(48 * time.Hour)
	require.NoError(t, s.SaveSummary(SummaryFrom(snapshot(100), saved)))

	got, err := s.LatestSummary()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.Cycle)
	assert.True(t, got.SimTime.Equal(epoch.Add(100*time.Hour)))
	assert.True(t, got.SavedAt.Equal(saved))
	assert.Equal(t, 50, got.Population)
	assert.Equal(t, 60, got.AgentCount)
	assert.InDelta(t, 0.6, got.CitizenSatisfaction, 1e-9)
}

func TestSaveSummary_PrunesToKeep(t *testing.T) {
	// GIVEN a store that keeps three summaries
	s := openTemp(t, 3)

	// WHEN seven are written
	for c := uint64(1); c <= 7; c++ {
		require.NoError(t, s.SaveSummary(SummaryFrom(snapshot(c*100), epoch)))
	}

	// THEN only the newest three remain, newest first
	rows, err := s.Summaries(10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []uint64{700, 600, 500}, []uint64{rows[0].Cycle, rows[1].Cycle, rows[2].Cycle})
}

func TestSaveSummary_SameCycleReplaces(t *testing.T) {
	s := openTemp(t, 5)
	first := snapshot(10)
	require.NoError(t, s.SaveSummary(SummaryFrom(first, epoch)))
	second := snapshot(10)
	second.Population = 75
	require.NoError(t, s.SaveSummary(SummaryFrom(second, epoch)))

	rows, err := s.Summaries(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 75, rows[0].Population)
}

func TestScenarioResults_RoundTrip(t *testing.T) {
	s := openTemp(t, 5)
	before, after := snapshot(0), snapshot(20)
	after.CitizenSatisfaction = 0.3
	for i, k := range []scenario.Kind{scenario.EnergyCrisis, scenario.Pandemic} {
		r := scenario.Result{
			ID:         uuid.New(),
			Scenario:   k,
			Ticks:      20,
			StartCycle: uint64(i * 20),
			EndCycle:   uint64(i*20 + 20),
			Before:     before,
			After:      after,
			Changes:    scenario.Compare(before, after),
		}
		require.NoError(t, s.SaveScenarioResult(r))
	}

	got, err := s.ScenarioResults(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, scenario.Pandemic, got[0].Scenario)
	assert.Equal(t, scenario.EnergyCrisis, got[1].Scenario)
	assert.Equal(t, 50, got[0].After.Counts[agents.TypeCitizen])
	assert.InDelta(t, -0.3, got[0].Changes["citizen_satisfaction_change"], 1e-9)
}

func TestMeta(t *testing.T) {
	s := openTemp(t, 5)
	require.NoError(t, s.SaveMeta("last_cycle", "42"))
	require.NoError(t, s.SaveMeta("last_cycle", "43"))
	v, err := s.GetMeta("last_cycle")
	require.NoError(t, err)
	assert.Equal(t, "43", v)
}
