// Package engine drives the city: it owns the agents, events, market,
// metrics and bulk backend, and advances them one tick at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/backend"
	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/metrics"
	"github.com/talgya/mini-city/internal/perfmon"
	"github.com/talgya/mini-city/internal/persistence"
	"github.com/talgya/mini-city/internal/scenario"
	"github.com/talgya/mini-city/internal/world"
)

var (
	// ErrAlreadyRunning is returned when Run, RunScenario or Initialize is
	// called while the engine is already driving ticks.
	ErrAlreadyRunning = errors.New("engine: already running")
	// ErrNotInitialized is returned when ticking before Initialize.
	ErrNotInitialized = errors.New("engine: not initialized")
	// ErrStopped is returned by RunScenario when Stop ends it early.
	ErrStopped = errors.New("engine: stopped")
)

// Epoch is the simulation time of cycle 0.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// scenarioHistoryCap bounds the in-memory scenario results.
const scenarioHistoryCap = 100

// SummaryStore receives periodic summaries and scenario results.
// *persistence.Store satisfies it.
type SummaryStore interface {
	SaveSummary(persistence.Summary) error
	SaveScenarioResult(scenario.Result) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithStore enables summary persistence.
func WithStore(s SummaryStore) Option { return func(e *Engine) { e.store = s } }

// WithClock sets the wall clock used to stamp saved summaries.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.clock = now } }

// Engine is the cycle scheduler. All exported methods are safe for
// concurrent use; ticks never overlap.
type Engine struct {
	cfg     config.Config
	log     *slog.Logger
	store   SummaryStore
	clock   func() time.Time
	workers int

	ctl     sync.Mutex    // guards halt and running/stop transitions
	halt    chan struct{} // closed by Stop; nil when idle
	running atomic.Bool
	stop    atomic.Bool

	mu          sync.Mutex // guards everything below and serializes ticks
	initialized bool
	cycle       uint64
	simTime     time.Time
	src         *entropy.Source
	registry    *agents.Registry
	spawner     *agents.Spawner
	events      *events.System
	history     *metrics.History[metrics.Snapshot]
	latest      metrics.Snapshot
	scenarios   *metrics.History[scenario.Result]
	backend     *backend.Engine
	monitor     *perfmon.Monitor
}

// New validates cfg and builds an idle engine. Call Initialize before
// ticking.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		log:       slog.Default(),
		clock:     time.Now,
		workers:   cfg.Schedule.Workers,
		simTime:   Epoch,
		history:   metrics.NewHistory[metrics.Snapshot](cfg.History.MetricsCap),
		scenarios: metrics.NewHistory[scenario.Result](scenarioHistoryCap),
	}
	for _, o := range opts {
		o(e)
	}
	e.monitor = perfmon.New(cfg.Monitor.Window,
		perfmon.WithStabilityThreshold(cfg.Monitor.StabilityThreshold),
		perfmon.WithLogger(e.log))
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	preferred, err := backend.ParseKind(cfg.Backend.Preferred)
	if err != nil {
		return nil, err
	}
	e.src = entropy.NewSource(cfg.City.Seed)
	params := backend.ParamsFrom(cfg.Backend, e.src.Stream(entropy.SubsystemBackend))
	if e.backend, _, err = backend.New(params, preferred, e.monitor, backend.WithLogger(e.log)); err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

// CountsFromConfig returns the initial population named in cfg.
func CountsFromConfig(cfg config.Config) agents.Counts {
	return agents.Counts{
		Citizens:       cfg.City.Citizens,
		Businesses:     cfg.City.Businesses,
		Infrastructure: cfg.City.Infrastructure,
		Governments:    cfg.City.Governments,
	}
}

// Initialize spawns a fresh population and resets the cycle, events,
// metrics history and backend. The same seed always yields the same city.
func (e *Engine) Initialize(counts agents.Counts) error {
	if counts.Citizens < 0 || counts.Businesses < 0 || counts.Infrastructure < 0 || counts.Governments < 0 {
		return config.Invalid("counts", "must be non-negative, got %+v", counts)
	}
	if e.running.Load() {
		return ErrAlreadyRunning
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg
	e.src = entropy.NewSource(cfg.City.Seed)
	bounds := world.NewBounds(cfg.City.Width, cfg.City.Height)
	e.registry = agents.NewRegistry(bounds)
	e.spawner = agents.NewSpawner(e.src, bounds, cfg.City.Name)
	for _, a := range e.spawner.Population(counts) {
		if err := e.registry.Add(a); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	}
	e.events = events.NewSystem(events.Catalog(), e.src.Stream(entropy.SubsystemEvents), events.WithLogger(e.log))
	e.history.Reset()

	kind := e.backend.Kind()
	params := backend.ParamsFrom(cfg.Backend, e.src.Stream(entropy.SubsystemBackend))
	be, _, err := backend.New(params, kind, e.monitor, backend.WithLogger(e.log))
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	e.monitor.Reset()
	e.backend = be
	e.mirror(e.registry.All())

	e.cycle = 0
	e.simTime = Epoch
	e.latest = e.snapshot()
	e.initialized = true

	e.log.Info("city initialized",
		"city", cfg.City.Name,
		"seed", e.src.Seed(),
		"citizens", counts.Citizens,
		"businesses", counts.Businesses,
		"infrastructure", counts.Infrastructure,
		"governments", counts.Governments,
		"backend", e.backend.Kind(),
	)
	return nil
}

// mirror adds the bulk-simulated agents to the backend, scaling positions
// from city to backend extent. Infrastructure is not mirrored.
func (e *Engine) mirror(view []agents.Agent) {
	sx := e.cfg.Backend.Width / e.cfg.City.Width
	sy := e.cfg.Backend.Height / e.cfg.City.Height
	for _, a := range view {
		pos := a.Common().Position
		x, y := pos.X*sx, pos.Y*sy
		switch v := a.(type) {
		case *agents.Citizen:
			e.backend.AddCitizen(backend.CitizenParams{
				X: x, Y: y,
				RiskTolerance:    v.Personality.RiskTolerance,
				SocialPreference: v.Personality.SocialOrientation,
			})
		case *agents.Business:
			e.backend.AddBusiness(backend.BusinessParams{X: x, Y: y, BusinessType: v.Sector.String()})
		case *agents.Government:
			e.backend.AddGovernment(backend.GovernmentParams{X: x, Y: y, Policies: map[string]float64{
				"tax_rate":                  v.Policies.TaxRate,
				"minimum_wage":              v.Policies.MinimumWage,
				"environmental_regulations": v.Policies.EnvironmentalRegulations,
				"social_welfare":            v.Policies.SocialWelfare,
				"infrastructure_investment": v.Policies.InfrastructureInvestment,
				"public_services":           v.Policies.PublicServices,
			}})
		}
	}
}

// snapshot computes the metrics for the current cycle. Caller holds mu.
func (e *Engine) snapshot() metrics.Snapshot {
	return e.snapshotAt(e.cycle, e.simTime)
}

func (e *Engine) snapshotAt(cycle uint64, now time.Time) metrics.Snapshot {
	s := metrics.Compute(e.registry.All(), cycle, now)
	s.ActiveEvents = e.events.Count()
	return s
}

// Backend returns the bulk backend engine.
func (e *Engine) Backend() *backend.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend
}

// Monitor returns the performance monitor fed by backend ticks.
func (e *Engine) Monitor() *perfmon.Monitor { return e.monitor }

// SwitchBackend migrates the bulk agents to the named implementation.
func (e *Engine) SwitchBackend(name string) error {
	k, err := backend.ParseKind(name)
	if err != nil {
		return err
	}
	return e.Backend().Switch(k)
}
