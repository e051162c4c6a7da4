package backend

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/perfmon"
)

func testParams(seed int64) Params {
	return Params{
		Width: 200, Height: 150,
		CollisionRadius: 5, InteractionRadius: 20,
		Rand: rand.New(rand.NewSource(seed)),
	}
}

// populate adds the same population to b using its own layout stream.
func populate(b Backend, citizens, businesses, governments int) {
	layout := rand.New(rand.NewSource(77))
	for i := 0; i < citizens; i++ {
		b.AddCitizen(CitizenParams{
			X: layout.Float64() * 200, Y: layout.Float64() * 150,
			RiskTolerance: layout.Float64(), SocialPreference: layout.Float64(),
		})
	}
	for i := 0; i < businesses; i++ {
		b.AddBusiness(BusinessParams{X: layout.Float64() * 200, Y: layout.Float64() * 150, BusinessType: []string{"food", "energy"}[i%2]})
	}
	for i := 0; i < governments; i++ {
		b.AddGovernment(GovernmentParams{X: 100, Y: 75, Policies: map[string]float64{"tax_rate": 0.2}})
	}
}

func requireNative(t *testing.T) {
	t.Helper()
	if !NativeAvailable {
		t.Skip("native backend excluded from this build")
	}
}

func TestBackends_Equivalent(t *testing.T) {
	requireNative(t)

	// GIVEN both implementations with the same population and random stream
	nat, err := newNative(testParams(1))
	require.NoError(t, err)
	fb, err := newFallback(testParams(1))
	require.NoError(t, err)
	populate(nat, 40, 10, 1)
	populate(fb, 40, 10, 1)

	// WHEN both run the same ticks
	for i := 0; i < 25; i++ {
		rn, rf := nat.Tick(1), fb.Tick(1)
		require.Equal(t, rn.AgentsUpdated, rf.AgentsUpdated)
		require.Equal(t, rn.InteractionsCalculated, rf.InteractionsCalculated)
	}

	// THEN counts match and positions agree and stay in bounds
	sn, sf := nat.Stats(), fb.Stats()
	assert.Equal(t, sn.CountByType, sf.CountByType)
	assert.Equal(t, [NumAgentKinds]int{40, 10, 1}, sn.CountByType)
	assert.InDelta(t, sn.AvgEnergy, sf.AvgEnergy, 1e-9)

	pn, pf := nat.Positions(), fb.Positions()
	require.Len(t, pf, len(pn))
	for i := range pn {
		assert.Equal(t, pn[i].ID, pf[i].ID)
		assert.InDelta(t, pn[i].X, pf[i].X, 1e-9)
		assert.InDelta(t, pn[i].Y, pf[i].Y, 1e-9)
		for _, p := range []Position{pn[i], pf[i]} {
			assert.True(t, p.X >= 0 && p.X <= 200 && p.Y >= 0 && p.Y <= 150, "out of bounds: %+v", p)
		}
	}
}

func TestBackend_EnergyDecayByKind(t *testing.T) {
	for _, kind := range []Kind{KindNative, KindFallback} {
		t.Run(string(kind), func(t *testing.T) {
			if kind == KindNative {
				requireNative(t)
			}
			p := testParams(2)
			p.CollisionRadius = 0
			b, err := newImpl(kind, p)
			require.NoError(t, err)
			c := b.AddCitizen(CitizenParams{X: 10, Y: 10, RiskTolerance: 0.5, SocialPreference: 0.5})
			bz := b.AddBusiness(BusinessParams{X: 50, Y: 50})
			g := b.AddGovernment(GovernmentParams{X: 100, Y: 100})

			for i := 0; i < 10; i++ {
				b.Tick(1)
			}
			energy := map[ID]float64{}
			for _, pos := range b.Positions() {
				energy[pos.ID] = pos.Energy
			}
			assert.InDelta(t, 99, energy[c], 1e-9)
			assert.InDelta(t, 99.5, energy[bz], 1e-9)
			assert.InDelta(t, 99.8, energy[g], 1e-9)

			// Energy floors at zero.
			b.Tick(5000)
			for _, pos := range b.Positions() {
				assert.GreaterOrEqual(t, pos.Energy, 0.0)
			}
		})
	}
}

func TestBackend_CollisionSeparates(t *testing.T) {
	b, err := newFallback(Params{Width: 100, Height: 100, CollisionRadius: 5, Rand: rand.New(rand.NewSource(3))})
	require.NoError(t, err)
	b.AddGovernment(GovernmentParams{X: 50, Y: 50})
	b.AddGovernment(GovernmentParams{X: 54, Y: 50})
	b.Tick(1)
	pos := b.Positions()
	assert.InDelta(t, 47, pos[0].X, 1e-9)
	assert.InDelta(t, 57, pos[1].X, 1e-9)
}

func TestBackend_InteractionsCountCitizenBusinessPairs(t *testing.T) {
	b, err := newFallback(Params{Width: 100, Height: 100, InteractionRadius: 20, Rand: rand.New(rand.NewSource(4))})
	require.NoError(t, err)
	b.AddCitizen(CitizenParams{X: 10, Y: 10})
	b.AddCitizen(CitizenParams{X: 90, Y: 90})
	b.AddBusiness(BusinessParams{X: 15, Y: 10})
	b.AddGovernment(GovernmentParams{X: 10, Y: 12})
	res := b.Tick(0)
	assert.Equal(t, 1, res.InteractionsCalculated)
	assert.Equal(t, 4, res.AgentsUpdated)
}

func TestEngine_FallsBackOnNativeFailure(t *testing.T) {
	// GIVEN a capacity the native backend refuses to pre-allocate
	p := testParams(5)
	p.Capacity = maxNativeCapacity + 1
	if !NativeAvailable {
		p.Capacity = 0
	}

	// WHEN native is requested
	e, kind, err := New(p, KindNative, nil)

	// THEN the fallback is selected and the reason recorded
	require.NoError(t, err)
	assert.Equal(t, KindFallback, kind)
	info := e.Info()
	assert.False(t, info.NativeActive)
	assert.Contains(t, info.FallbackReason, ErrNativeUnavailable.Error())
}

func TestEngine_FallsBackWithoutRandomSource(t *testing.T) {
	_, _, err := New(Params{Width: 10, Height: 10}, KindNative, nil)
	assert.Error(t, err)
}

func TestEngine_SwitchMigratesAgents(t *testing.T) {
	requireNative(t)
	mon := perfmon.New(100)
	e, kind, err := New(testParams(6), KindNative, mon)
	require.NoError(t, err)
	require.Equal(t, KindNative, kind)

	for i := 0; i < 12; i++ {
		e.AddCitizen(CitizenParams{X: float64(i * 10), Y: 20, RiskTolerance: 0.3, SocialPreference: 0.3})
	}
	e.AddBusiness(BusinessParams{X: 30, Y: 30})
	e.AddGovernment(GovernmentParams{X: 60, Y: 60})
	e.Tick(1)
	before := e.Positions()

	require.NoError(t, e.Switch(KindFallback))
	assert.Equal(t, KindFallback, e.Kind())
	assert.Equal(t, before, e.Positions())
	assert.Equal(t, [NumAgentKinds]int{12, 1, 1}, e.Stats().CountByType)

	// New ids continue after the migrated ones.
	id := e.AddCitizen(CitizenParams{X: 1, Y: 1})
	assert.Equal(t, ID(15), id)

	require.NoError(t, e.Switch(KindFallback))
	assert.ErrorIs(t, e.Switch("quantum"), ErrUnknownBackend)
	require.NoError(t, e.Switch(KindNative))
	assert.True(t, e.Info().NativeActive)
}

func TestEngine_TickRecordsSample(t *testing.T) {
	mon := perfmon.New(100)
	e, _, err := New(testParams(7), KindFallback, mon)
	require.NoError(t, err)
	populate(e.impl, 10, 2, 1)

	res := e.Tick(1)
	assert.Equal(t, 13, res.AgentsUpdated)
	assert.InDelta(t, 1.3, res.Sample.MemoryMB, 1e-9)
	assert.LessOrEqual(t, res.Sample.CPUPercent, 100.0)
	assert.Equal(t, uint64(1), mon.Current().TotalUpdates)
}

func TestEngine_TickAsync(t *testing.T) {
	e, _, err := New(testParams(8), KindFallback, nil)
	require.NoError(t, err)
	e.AddCitizen(CitizenParams{X: 5, Y: 5})

	r := <-e.TickAsync(context.Background(), 1)
	require.NoError(t, r.Err)
	assert.Equal(t, 1, r.Result.AgentsUpdated)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r = <-e.TickAsync(ctx, 1)
	assert.ErrorIs(t, r.Err, context.Canceled)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("fallback")
	require.NoError(t, err)
	assert.Equal(t, KindFallback, k)
	_, err = ParseKind("gpu")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
