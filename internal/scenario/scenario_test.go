package scenario

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/metrics"
	"github.com/talgya/mini-city/internal/world"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTarget(t *testing.T) (Target, *events.System) {
	t.Helper()
	bounds := world.NewBounds(100, 100)
	src := entropy.NewSource(11)
	sp := agents.NewSpawner(src, bounds, "Testville")
	reg := agents.NewRegistry(bounds)
	for _, a := range sp.Population(agents.Counts{Citizens: 50, Businesses: 10, Infrastructure: 10, Governments: 1}) {
		require.NoError(t, reg.Add(a))
	}
	sys := events.NewSystem(events.Catalog(), rand.New(rand.NewSource(1)))
	return Target{
		Registry: reg,
		Spawner:  sp,
		Events:   sys,
		Rand:     rand.New(rand.NewSource(2)),
		Start:    1,
		Now:      epoch,
	}, sys
}

func TestParse(t *testing.T) {
	for _, k := range All() {
		got, err := Parse(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
		assert.NotEmpty(t, k.Description())
	}

	_, err := Parse("alien_invasion")
	var unknown *UnknownError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "alien_invasion", unknown.Name)
	assert.Contains(t, err.Error(), "smart_grid")
}

func TestApply_EventScenariosActivateForTicks(t *testing.T) {
	tests := []struct {
		kind  Kind
		event events.Kind
	}{
		{EnergyCrisis, events.EnergyCrisis},
		{Pandemic, events.Pandemic},
		{EconomicBoom, events.EconomicBoom},
		{AutonomousTransport, events.TechnologicalBreakthrough},
		{SmartGrid, events.TechnologicalBreakthrough},
		{SocialInequality, events.SocialInequality},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			target, sys := newTarget(t)
			out, err := Apply(tc.kind, target, 7)
			require.NoError(t, err)
			require.Len(t, out.Events, 1)
			ev := out.Events[0]
			assert.Equal(t, tc.event, ev.Kind)
			assert.Equal(t, 7, ev.Duration)
			assert.True(t, ev.Scripted)
			assert.True(t, sys.IsActive(tc.event))
		})
	}
}

func TestApply_EnergyCrisisImpact(t *testing.T) {
	target, sys := newTarget(t)
	_, err := Apply(EnergyCrisis, target, 20)
	require.NoError(t, err)
	im := sys.Impact()
	assert.InDelta(t, 0.8, im.Get(agents.FactorEnergyPrices), 1e-9)
	assert.InDelta(t, -0.3, im.Get(agents.FactorCitizenSatisfaction), 1e-9)
}

func TestApply_TaxIncreaseCapped(t *testing.T) {
	target, _ := newTarget(t)
	g := target.Registry.Governments()[0]
	for i := 0; i < 10; i++ {
		_, err := Apply(TaxIncrease, target, 1)
		require.NoError(t, err)
	}
	assert.InDelta(t, taxCeiling, g.Policies.TaxRate, 1e-9)
}

func TestApply_PopulationGrowthAddsCitizens(t *testing.T) {
	target, _ := newTarget(t)
	before := target.Registry.Counts()[agents.TypeCitizen]
	out, err := Apply(PopulationGrowth, target, 5)
	require.NoError(t, err)
	assert.Len(t, out.Spawned, growthCitizens)
	assert.Equal(t, before+growthCitizens, target.Registry.Counts()[agents.TypeCitizen])
}

func TestApply_InfrastructureFailure(t *testing.T) {
	target, _ := newTarget(t)
	out, err := Apply(InfrastructureFailure, target, 5)
	require.NoError(t, err)
	failed := 0
	for _, u := range target.Registry.Infrastructure() {
		if !u.Operational {
			failed++
		}
	}
	assert.Equal(t, out.Affected, failed)
}

func TestApply_SmartGridUpgradesEnergyUnitsOnly(t *testing.T) {
	target, _ := newTarget(t)
	before := map[agents.AgentID]float64{}
	for _, u := range target.Registry.Infrastructure() {
		u.Efficiency = 0.5
		before[u.ID()] = u.Efficiency
	}
	_, err := Apply(SmartGrid, target, 3)
	require.NoError(t, err)
	for _, u := range target.Registry.Infrastructure() {
		if u.Kind == agents.InfraEnergy {
			assert.InDelta(t, 0.7, u.Efficiency, 1e-9)
		} else {
			assert.InDelta(t, before[u.ID()], u.Efficiency, 1e-9)
		}
	}
}

func TestApply_RejectsNonPositiveTicks(t *testing.T) {
	target, sys := newTarget(t)
	_, err := Apply(Pandemic, target, 0)
	assert.ErrorIs(t, err, ErrNoTicks)
	assert.Zero(t, sys.Count())
}

func TestCompare(t *testing.T) {
	before := metrics.Snapshot{Population: 50, CitizenSatisfaction: 0.5, EconomicHealth: 0}
	before.Counts[agents.TypeCitizen] = 50
	after := metrics.Snapshot{Population: 70, CitizenSatisfaction: 0.4, EconomicHealth: 0.2}
	after.Counts[agents.TypeCitizen] = 70

	ch := Compare(before, after)
	assert.InDelta(t, 20, ch["population_change"], 1e-9)
	assert.InDelta(t, 40, ch["population_change_percent"], 1e-9)
	assert.InDelta(t, -0.1, ch["citizen_satisfaction_change"], 1e-9)
	assert.InDelta(t, -20, ch["citizen_satisfaction_change_percent"], 1e-9)
	assert.InDelta(t, 0.2, ch["economic_health_change"], 1e-9)
	assert.Zero(t, ch["economic_health_change_percent"])
	assert.InDelta(t, 20, ch["citizens_change"], 1e-9)
	assert.Contains(t, ch, "infrastructure_change")
	assert.Contains(t, ch, "governments_change")
	assert.Len(t, ChangeKeys(ch), 14)
}

func TestNewRunID_Deterministic(t *testing.T) {
	a := NewRunID(rand.New(rand.NewSource(5)))
	b := NewRunID(rand.New(rand.NewSource(5)))
	assert.Equal(t, a, b)
}
