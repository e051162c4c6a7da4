package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/backend"
	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/persistence"
)

// TickReport describes one completed tick.
type TickReport struct {
	Cycle             uint64             `json:"cycle"`
	SimTime           time.Time          `json:"sim_time"`
	Duration          time.Duration      `json:"duration"`
	AgentsRun         int                `json:"agents_run"`
	Failures          int                `json:"failures"`
	MessagesDelivered int                `json:"messages_delivered"`
	EventStarted      string             `json:"event_started,omitempty"`
	EventsExpired     int                `json:"events_expired"`
	MarketCleared     bool               `json:"market_cleared"`
	PricesAdjusted    int                `json:"prices_adjusted"`
	MetricsTaken      bool               `json:"metrics_taken"`
	Persisted         bool               `json:"persisted"`
	Backend           backend.TickResult `json:"backend"`
}

// SimTime returns the simulation time of cycle at hoursPerTick.
func SimTime(cycle uint64, hoursPerTick int) time.Time {
	return Epoch.Add(time.Duration(cycle) * time.Duration(hoursPerTick) * time.Hour)
}

// FormatSimTime renders t as a day count since Epoch plus the clock hour.
func FormatSimTime(t time.Time) string {
	d := t.Sub(Epoch)
	days := int(d / (24 * time.Hour))
	return fmt.Sprintf("Day %d, %02d:00", days+1, t.Hour())
}

// Cycle returns the number of completed ticks.
func (e *Engine) Cycle() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle
}

// Running reports whether Run or RunScenario is in progress.
func (e *Engine) Running() bool { return e.running.Load() }

// Tick advances the city by exactly one cycle.
func (e *Engine) Tick() (TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return TickReport{}, ErrNotInitialized
	}
	return e.step(), nil
}

// Run drives ticks until Stop is called or ctx is done, sleeping the rest
// of the configured tick interval between ticks. A Stop returns nil; a done
// ctx returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	return e.run(ctx, 0)
}

// RunTicks is Run bounded to n ticks.
func (e *Engine) RunTicks(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}
	return e.run(ctx, n)
}

// RunFor is Run bounded by a wall-clock budget. Reaching the budget is not
// an error.
func (e *Engine) RunFor(ctx context.Context, d time.Duration) error {
	budget, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := e.run(budget, 0)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil
	}
	return err
}

// Stop asks a running loop or scenario to return after the tick in flight.
// It also cuts short the sleep between ticks. A no-op when idle.
func (e *Engine) Stop() {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	if e.running.Load() && !e.stop.Load() {
		e.stop.Store(true)
		close(e.halt)
	}
}

// begin marks the engine running and returns the channel Stop closes.
func (e *Engine) begin() (<-chan struct{}, error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	if e.running.Load() {
		return nil, ErrAlreadyRunning
	}
	e.halt = make(chan struct{})
	e.running.Store(true)
	return e.halt, nil
}

// end clears the running state and any pending Stop.
func (e *Engine) end() {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	e.halt = nil
	e.stop.Store(false)
	e.running.Store(false)
}

func (e *Engine) run(ctx context.Context, budget uint64) error {
	halt, err := e.begin()
	if err != nil {
		return err
	}
	defer e.end()

	e.mu.Lock()
	ok, cycle := e.initialized, e.cycle
	e.mu.Unlock()
	if !ok {
		return ErrNotInitialized
	}

	interval := e.cfg.Schedule.TickInterval
	e.log.Info("simulation engine started", "cycle", cycle, "interval", interval, "budget", budget)

	timer := time.NewTimer(0)
	defer timer.Stop()
	var done uint64
	for !e.stop.Load() {
		if err := ctx.Err(); err != nil {
			e.log.Info("simulation engine stopped", "cycle", e.Cycle(), "reason", err)
			return err
		}

		start := time.Now()
		e.mu.Lock()
		e.step()
		e.mu.Unlock()
		done++
		if budget > 0 && done >= budget {
			break
		}

		// Sleep for the remainder of the tick interval.
		if wait := interval - time.Since(start); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
			case <-halt:
			case <-timer.C:
			}
		}
	}

	e.log.Info("simulation engine stopped", "cycle", e.Cycle(), "ticks", done)
	return nil
}

// step runs one tick. Caller holds mu.
func (e *Engine) step() TickReport {
	start := time.Now()
	sched := e.cfg.Schedule
	tick := e.cycle + 1
	now := SimTime(tick, sched.SimHoursPerTick)
	rep := TickReport{Cycle: tick, SimTime: now}

	// Event maintenance: expire, then maybe start one and tell everyone.
	rep.EventsExpired = len(e.events.Advance(tick))
	if ev, ok := e.events.Maybe(tick, sched.EventProbability, now); ok {
		rep.EventStarted = ev.Kind.String()
		rep.MessagesDelivered += e.registry.Broadcast(events.Notification(ev, now, tick))
	}

	// One immutable context for every agent task.
	view := e.registry.All()
	pricers, demanders := economy.Participants(e.registry.Businesses(), e.registry.Citizens())
	market := economy.Survey(pricers, demanders)
	params := agents.ContextParams{
		Cycle:        tick,
		SimTime:      now,
		DeltaTime:    sched.DeltaTime,
		Impact:       e.events.Impact(),
		ActiveEvents: e.events.ActiveKinds(),
		City:         e.latest.Indicators(),
	}
	for s, entry := range market.Sectors {
		params.Demand[s] = entry.Demand
		params.Supply[s] = entry.Supply
	}
	actx := agents.NewContext(view, params)

	rep.AgentsRun = len(view)
	failures, delivered := e.runAgents(actx, view, sched.DeltaTime)
	rep.Failures = failures
	rep.MessagesDelivered += delivered

	rep.Backend = e.backend.Tick(sched.DeltaTime)

	if tick%sched.MarketEvery == 0 {
		rep.MarketCleared = true
		rep.PricesAdjusted = economy.Clear(pricers, demanders).Adjusted
		e.log.Debug("market cleared", "cycle", tick, "adjusted", rep.PricesAdjusted, "businesses", len(pricers))
	}

	if tick%sched.MetricsEvery == 0 {
		e.latest = e.snapshotAt(tick, now)
		e.history.Append(e.latest)
		rep.MetricsTaken = true
		e.log.Debug("metrics snapshot",
			"cycle", tick,
			"population", e.latest.Population,
			"satisfaction", e.latest.CitizenSatisfaction,
			"economic_health", e.latest.EconomicHealth,
		)
	}

	if tick%sched.PersistEvery == 0 && e.store != nil {
		snap := e.latest
		if snap.Cycle != tick {
			snap = e.snapshotAt(tick, now)
		}
		if err := e.store.SaveSummary(persistence.SummaryFrom(snap, e.clock())); err != nil {
			e.log.Error("summary not persisted", "cycle", tick, "err", err)
		} else {
			rep.Persisted = true
		}
	}

	e.cycle = tick
	e.simTime = now
	rep.Duration = time.Since(start)

	e.log.Debug("tick",
		"cycle", tick,
		"time", FormatSimTime(now),
		"agents", rep.AgentsRun,
		"failures", rep.Failures,
		"messages", rep.MessagesDelivered,
		"event", rep.EventStarted,
		"duration", rep.Duration,
	)
	return rep
}
