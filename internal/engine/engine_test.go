package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/backend"
	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/persistence"
	"github.com/talgya/mini-city/internal/scenario"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() config.Config {
	cfg := config.Default()
	cfg.City.Seed = 7
	cfg.Schedule.EventProbability = 0
	cfg.Schedule.TickInterval = 0
	cfg.Store.Path = ""
	return cfg
}

var smallCity = agents.Counts{Citizens: 50, Businesses: 10, Infrastructure: 5, Governments: 1}

func newEngine(t *testing.T, cfg config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, append([]Option{WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(smallCity))
	return e
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.MarketEvery = 0
	_, err := New(cfg)
	var verr *config.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestTick_RequiresInitialize(t *testing.T) {
	e, err := New(testConfig(), WithLogger(quiet))
	require.NoError(t, err)

	_, err = e.Tick()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, e.Run(context.Background()), ErrNotInitialized)
	assert.False(t, e.Running())
}

func TestInitialize_PopulatesRegistryAndBackend(t *testing.T) {
	e := newEngine(t, testConfig())

	st := e.Status()
	assert.True(t, st.Initialized)
	assert.Equal(t, uint64(0), st.Cycle)
	assert.Equal(t, Epoch, st.SimTime)
	assert.Equal(t, agents.TypeCounts{50, 10, 1, 5}, st.AgentCounts)
	assert.Nil(t, st.Latest)

	// Infrastructure is not mirrored into the bulk backend.
	assert.Equal(t, [backend.NumAgentKinds]int{50, 10, 1}, e.Backend().Stats().CountByType)
}

func TestTick_CycleAndCadence(t *testing.T) {
	// GIVEN a fresh city
	e := newEngine(t, testConfig())

	// WHEN it runs 25 single ticks
	var reports []TickReport
	for i := 0; i < 25; i++ {
		rep, err := e.Tick()
		require.NoError(t, err)
		// THEN the cycle grows by exactly one each time
		require.Equal(t, uint64(i+1), rep.Cycle)
		require.Equal(t, SimTime(rep.Cycle, 1), rep.SimTime)
		reports = append(reports, rep)
	}

	// AND market clearing and metrics follow their cadence
	for _, rep := range reports {
		assert.Equal(t, rep.Cycle%5 == 0, rep.MarketCleared, "cycle %d", rep.Cycle)
		assert.Equal(t, rep.Cycle%10 == 0, rep.MetricsTaken, "cycle %d", rep.Cycle)
		assert.Equal(t, 66, rep.AgentsRun)
		assert.Zero(t, rep.Failures)
		assert.Equal(t, 61, rep.Backend.AgentsUpdated)
	}
	hist := e.MetricsHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, uint64(10), hist[0].Cycle)
	assert.Equal(t, uint64(20), hist[1].Cycle)
	assert.Equal(t, uint64(25), e.Cycle())
	assert.Equal(t, uint64(25), e.Monitor().Current().TotalUpdates)
}

func TestTick_SatisfactionAndEnergyStayInRange(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.EventProbability = 0.5
	cfg.Schedule.DeltaTime = 3
	e := newEngine(t, cfg)

	for i := 0; i < 40; i++ {
		_, err := e.Tick()
		require.NoError(t, err)
		for _, a := range e.Registry().All() {
			b := a.Common()
			require.True(t, b.Satisfaction >= 0 && b.Satisfaction <= 1, "%s satisfaction %g", a.ID(), b.Satisfaction)
			require.True(t, b.Energy >= 0 && b.Energy <= 1, "%s energy %g", a.ID(), b.Energy)
		}
	}
}

func TestTick_SameSeedSameCity(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.EventProbability = 0.3
	a, b := newEngine(t, cfg), newEngine(t, cfg)

	for i := 0; i < 30; i++ {
		ra, err := a.Tick()
		require.NoError(t, err)
		rb, err := b.Tick()
		require.NoError(t, err)
		require.Equal(t, ra.EventStarted, rb.EventStarted)
	}

	ha, hb := a.MetricsHistory(), b.MetricsHistory()
	require.Len(t, hb, len(ha))
	for i := range ha {
		assert.Equal(t, ha[i].Population, hb[i].Population)
		assert.InDelta(t, ha[i].CitizenSatisfaction, hb[i].CitizenSatisfaction, 1e-9)
		assert.InDelta(t, ha[i].EconomicHealth, hb[i].EconomicHealth, 1e-9)
	}
}

// panicker fails every Decide.
type panicker struct {
	base agents.Base
}

func (p *panicker) ID() agents.AgentID { return "panicker" }

func (p *panicker) Type() agents.Type { return agents.TypeInfrastructure }

func (p *panicker) Common() *agents.Base { return &p.base }

func (p *panicker) Decide(*agents.Context) agents.Decision { panic("boom") }

func (p *panicker) Update(float64) {}

func (p *panicker) HandleMessage(agents.Message) *agents.Message { return nil }

func (p *panicker) State() any { return nil }

func TestTick_AgentFailureIsIsolated(t *testing.T) {
	e := newEngine(t, testConfig())
	bad := &panicker{}
	bad.base.Mailbox = agents.NewMailbox(8)
	require.NoError(t, e.Registry().Add(bad))

	for i := 0; i < 3; i++ {
		rep, err := e.Tick()
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Failures)
		assert.Equal(t, 67, rep.AgentsRun)
	}
	assert.Equal(t, uint64(3), e.Cycle())
}

func TestRun_RejectsReentrantCallAndStops(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.TickInterval = 5 * time.Millisecond
	e := newEngine(t, cfg)

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = e.Run(context.Background())
	}()
	require.Eventually(t, func() bool { return e.Running() && e.Cycle() > 0 }, 2*time.Second, time.Millisecond)

	assert.ErrorIs(t, e.Run(context.Background()), ErrAlreadyRunning)
	_, err := e.RunScenario(context.Background(), "pandemic", 3)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorIs(t, e.Initialize(smallCity), ErrAlreadyRunning)
	assert.True(t, e.Status().Running)

	e.Stop()
	wg.Wait()
	require.NoError(t, runErr)
	assert.False(t, e.Running())

	// Stopped cycles never go backwards and the engine can run again.
	before := e.Cycle()
	require.NoError(t, e.RunTicks(context.Background(), 2))
	assert.Equal(t, before+2, e.Cycle())
}

func TestRunTicks_Budget(t *testing.T) {
	e := newEngine(t, testConfig())
	require.NoError(t, e.RunTicks(context.Background(), 7))
	assert.Equal(t, uint64(7), e.Cycle())
	require.NoError(t, e.RunTicks(context.Background(), 0))
	assert.Equal(t, uint64(7), e.Cycle())
}

func TestRunFor_WallBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.TickInterval = time.Millisecond
	e := newEngine(t, cfg)
	require.NoError(t, e.RunFor(context.Background(), 30*time.Millisecond))
	assert.Positive(t, e.Cycle())
	assert.False(t, e.Running())
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEngine(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	assert.Zero(t, e.Cycle())
}

func TestRunScenario_UnknownLeavesStateUnchanged(t *testing.T) {
	e := newEngine(t, testConfig())
	_, err := e.Tick()
	require.NoError(t, err)
	before := e.Status()

	_, err = e.RunScenario(context.Background(), "alien_invasion", 10)
	var unknown *scenario.UnknownError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "alien_invasion", unknown.Name)

	after := e.Status()
	assert.Equal(t, before.Cycle, after.Cycle)
	assert.Equal(t, before.AgentCounts, after.AgentCounts)
	assert.Empty(t, e.ScenarioHistory())
}

func TestRunScenario_RejectsNonPositiveTicks(t *testing.T) {
	e := newEngine(t, testConfig())
	for _, ticks := range []int{0, -3} {
		_, err := e.RunScenario(context.Background(), "pandemic", ticks)
		var verr *config.ValidationError
		require.True(t, errors.As(err, &verr), "ticks %d", ticks)
	}
	assert.Zero(t, e.Cycle())
	assert.Empty(t, e.ActiveEvents())
}

func TestRunScenario_EventLastsExactlyTicks(t *testing.T) {
	// GIVEN a quiet city
	e := newEngine(t, testConfig())

	// WHEN a pandemic runs for 5 ticks
	res, err := e.RunScenario(context.Background(), "pandemic", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.StartCycle)
	assert.Equal(t, uint64(5), res.EndCycle)

	// THEN it applied in all 5 ticks and expires on the next one
	require.Len(t, e.ActiveEvents(), 1)
	rep, err := e.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EventsExpired)
	assert.Empty(t, e.ActiveEvents())
}

func meanSectorPrice(e *Engine, s agents.Sector) float64 {
	sum, n := 0.0, 0
	for _, b := range e.Registry().Businesses() {
		if b.Sector == s {
			sum += b.Price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func TestRunScenario_EnergyCrisisRaisesEnergyPrices(t *testing.T) {
	// GIVEN two identical cities
	crisis, control := newEngine(t, testConfig()), newEngine(t, testConfig())

	// WHEN one runs an energy crisis and the other runs the same ticks plainly
	res, err := crisis.RunScenario(context.Background(), "energy_crisis", 20)
	require.NoError(t, err)
	require.NoError(t, control.RunTicks(context.Background(), 20))

	// THEN the result carries the compared indicators
	for _, key := range []string{"citizen_satisfaction_change", "economic_health_change", "population_change_percent", "citizens_change"} {
		assert.Contains(t, res.Changes, key)
	}
	assert.Equal(t, scenario.EnergyCrisis, res.Scenario)
	assert.Equal(t, uint64(20), crisis.Cycle())

	// AND energy prices end above the control run
	assert.Greater(t, meanSectorPrice(crisis, agents.SectorEnergy), meanSectorPrice(control, agents.SectorEnergy))
	require.Len(t, crisis.ScenarioHistory(), 1)
}

func TestRunScenario_PopulationGrowthMirrorsBackend(t *testing.T) {
	e := newEngine(t, testConfig())
	res, err := e.RunScenario(context.Background(), "population_growth", 3)
	require.NoError(t, err)

	assert.InDelta(t, 20, res.Changes["citizens_change"], 1e-9)
	assert.InDelta(t, 40, res.Changes["population_change_percent"], 1e-9)
	assert.Equal(t, 70, e.Backend().Stats().CountByType[backend.Citizen])
}

func TestRunScenario_CancelledContext(t *testing.T) {
	e := newEngine(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.RunScenario(ctx, "economic_boom", 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, e.Running())
}

func TestRunScenario_StopEndsItAndIsNotLeaked(t *testing.T) {
	e := newEngine(t, testConfig())

	errc := make(chan error, 1)
	go func() {
		_, err := e.RunScenario(context.Background(), "pandemic", 200000)
		errc <- err
	}()
	require.Eventually(t, func() bool { return e.Running() && e.Cycle() > 0 }, 2*time.Second, time.Millisecond)

	e.Stop()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("scenario did not observe Stop")
	}
	assert.False(t, e.Running())
	assert.Empty(t, e.ScenarioHistory())

	// A later run is not cut short by the earlier Stop.
	before := e.Cycle()
	require.NoError(t, e.RunTicks(context.Background(), 5))
	assert.Equal(t, before+5, e.Cycle())
}

func TestStop_InterruptsTickInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.TickInterval = time.Hour
	e := newEngine(t, cfg)

	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()
	require.Eventually(t, func() bool { return e.Cycle() == 1 }, 2*time.Second, time.Millisecond)

	e.Stop()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run still sleeping after Stop")
	}
	assert.Equal(t, uint64(1), e.Cycle())
	assert.False(t, e.Running())
}

func TestStop_IdleIsNoop(t *testing.T) {
	e := newEngine(t, testConfig())
	e.Stop()
	require.NoError(t, e.RunTicks(context.Background(), 3))
	assert.Equal(t, uint64(3), e.Cycle())
}

func TestWithLogger_CoversSubsystems(t *testing.T) {
	var global, own bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&global, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := testConfig()
	cfg.Schedule.EventProbability = 1
	logger := slog.New(slog.NewTextHandler(&own, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e, err := New(cfg, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(smallCity))

	require.NoError(t, e.RunTicks(context.Background(), 10))
	_, err = e.RunScenario(context.Background(), "population_growth", 2)
	require.NoError(t, err)
	require.NoError(t, e.SwitchBackend("fallback"))

	out := own.String()
	for _, msg := range []string{"backend selected", "event started", "market cleared", "scenario applied", "backend switched"} {
		assert.Contains(t, out, msg)
	}
	assert.Empty(t, global.String())
}

type memStore struct {
	mu        sync.Mutex
	summaries []persistence.Summary
	results   []scenario.Result
	fail      bool
}

func (m *memStore) SaveSummary(s persistence.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *memStore) SaveScenarioResult(r scenario.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.results = append(m.results, r)
	return nil
}

func TestTick_PersistsOnCadence(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.PersistEvery = 10
	saved := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{}
	e := newEngine(t, cfg, WithStore(store), WithClock(func() time.Time { return saved }))

	require.NoError(t, e.RunTicks(context.Background(), 25))
	require.Len(t, store.summaries, 2)
	assert.Equal(t, uint64(10), store.summaries[0].Cycle)
	assert.Equal(t, uint64(20), store.summaries[1].Cycle)
	assert.Equal(t, saved, store.summaries[0].SavedAt)
	assert.Equal(t, 66, store.summaries[0].AgentCount)

	_, err := e.RunScenario(context.Background(), "tax_increase", 2)
	require.NoError(t, err)
	assert.Len(t, store.results, 1)
}

func TestTick_PersistFailureIsSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.PersistEvery = 2
	store := &memStore{fail: true}
	e := newEngine(t, cfg, WithStore(store))

	for i := 0; i < 4; i++ {
		rep, err := e.Tick()
		require.NoError(t, err)
		assert.False(t, rep.Persisted)
	}
	assert.Equal(t, uint64(4), e.Cycle())

	_, err := e.RunScenario(context.Background(), "tax_increase", 1)
	require.NoError(t, err)
}

func TestAgentData_GroupsStatesByType(t *testing.T) {
	e := newEngine(t, testConfig())
	data := e.AgentData()
	assert.Len(t, data[agents.TypeCitizen], 50)
	assert.Len(t, data[agents.TypeBusiness], 10)
	assert.Len(t, data[agents.TypeInfrastructure], 5)
	assert.Len(t, data[agents.TypeGovernment], 1)
	_, ok := data[agents.TypeCitizen][0].(agents.CitizenState)
	assert.True(t, ok)
}

func TestSwitchBackend(t *testing.T) {
	e := newEngine(t, testConfig())
	require.NoError(t, e.SwitchBackend("fallback"))
	assert.Equal(t, backend.KindFallback, e.Backend().Kind())
	_, err := e.Tick()
	require.NoError(t, err)
	assert.ErrorIs(t, e.SwitchBackend("gpu"), backend.ErrUnknownBackend)
}

func TestFormatSimTime(t *testing.T) {
	assert.Equal(t, "Day 1, 00:00", FormatSimTime(Epoch))
	assert.Equal(t, "Day 2, 03:00", FormatSimTime(SimTime(27, 1)))
}
