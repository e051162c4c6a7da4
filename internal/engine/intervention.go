package engine

import (
	"context"
	"fmt"

	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/scenario"
)

// RunScenario applies the named intervention, runs ticks cycles and reports
// how the city changed. An unknown name or non-positive ticks leaves the
// city untouched. Cancelling ctx stops early and returns ctx.Err(); Stop
// ends it after the tick in flight and returns ErrStopped.
func (e *Engine) RunScenario(ctx context.Context, name string, ticks int) (scenario.Result, error) {
	kind, err := scenario.Parse(name)
	if err != nil {
		return scenario.Result{}, err
	}
	if ticks <= 0 {
		return scenario.Result{}, config.Invalid("ticks", "must be positive, got %d", ticks)
	}
	if _, err := e.begin(); err != nil {
		return scenario.Result{}, err
	}
	defer e.end()

	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return scenario.Result{}, ErrNotInitialized
	}
	rng := e.src.Stream(entropy.SubsystemScenario)
	res := scenario.Result{
		ID:         scenario.NewRunID(rng),
		Scenario:   kind,
		Ticks:      ticks,
		StartCycle: e.cycle,
		Started:    e.simTime,
		Before:     e.snapshot(),
	}
	e.log.Info("scenario started", "scenario", kind, "ticks", ticks, "cycle", e.cycle, "id", res.ID)

	out, err := scenario.Apply(kind, scenario.Target{
		Registry: e.registry,
		Spawner:  e.spawner,
		Events:   e.events,
		Rand:     rng,
		Start:    e.cycle + 1,
		Now:      e.simTime,
		Log:      e.log,
	}, ticks)
	if err != nil {
		e.mu.Unlock()
		return scenario.Result{}, fmt.Errorf("scenario %s: %w", kind, err)
	}
	if len(out.Spawned) > 0 {
		e.mirror(out.Spawned)
	}
	e.mu.Unlock()

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			e.log.Warn("scenario interrupted", "scenario", kind, "cycle", e.Cycle(), "err", err)
			return scenario.Result{}, err
		}
		if e.stop.Load() {
			e.log.Warn("scenario interrupted", "scenario", kind, "cycle", e.Cycle(), "err", ErrStopped)
			return scenario.Result{}, ErrStopped
		}
		e.mu.Lock()
		e.step()
		e.mu.Unlock()
	}

	e.mu.Lock()
	res.EndCycle = e.cycle
	res.Finished = e.simTime
	res.After = e.snapshot()
	e.mu.Unlock()
	res.Changes = scenario.Compare(res.Before, res.After)
	e.scenarios.Append(res)

	if e.store != nil {
		if err := e.store.SaveScenarioResult(res); err != nil {
			e.log.Error("scenario result not persisted", "id", res.ID, "err", err)
		}
	}
	e.log.Info("scenario finished",
		"scenario", kind,
		"cycle", res.EndCycle,
		"satisfaction_change", res.Changes["citizen_satisfaction_change"],
		"economic_health_change", res.Changes["economic_health_change"],
		"population_change", res.Changes["population_change"],
	)
	return res, nil
}

// Scenarios lists every scenario name with its description.
func Scenarios() map[string]string {
	out := make(map[string]string, scenario.NumKinds)
	for _, k := range scenario.All() {
		out[k.String()] = k.Description()
	}
	return out
}

// ScenarioHistory returns completed scenario runs, oldest first.
func (e *Engine) ScenarioHistory() []scenario.Result {
	return e.scenarios.Items()
}

