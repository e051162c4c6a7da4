package engine

import (
	"time"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/backend"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/metrics"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Name         string            `json:"city"`
	SimTime      time.Time         `json:"sim_time"`
	Cycle        uint64            `json:"cycle_count"`
	Running      bool              `json:"running"`
	Initialized  bool              `json:"initialized"`
	AgentCounts  agents.TypeCounts `json:"agent_counts"`
	ActiveEvents []events.Active   `json:"active_events"`
	Latest       *metrics.Snapshot `json:"latest_metrics,omitempty"`
	Backend      backend.Info      `json:"backend"`
}

// Status reports the current cycle, population and latest metrics.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Name:        e.cfg.City.Name,
		SimTime:     e.simTime,
		Cycle:       e.cycle,
		Running:     e.running.Load(),
		Initialized: e.initialized,
		Backend:     e.backend.Info(),
	}
	if !e.initialized {
		return st
	}
	st.AgentCounts = e.registry.Counts()
	st.ActiveEvents = e.events.Active()
	if snap, ok := e.history.Latest(); ok {
		st.Latest = &snap
	}
	return st
}

// AgentData returns every agent's serialized state grouped by type.
func (e *Engine) AgentData() map[agents.Type][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[agents.Type][]any, agents.NumTypes)
	if !e.initialized {
		return out
	}
	for _, t := range agents.AllTypes {
		view := e.registry.OfType(t)
		states := make([]any, len(view))
		for i, a := range view {
			states[i] = a.State()
		}
		out[t] = states
	}
	return out
}

// MetricsHistory returns a copy of the periodic snapshots, oldest first.
func (e *Engine) MetricsHistory() []metrics.Snapshot {
	return e.history.Items()
}

// ActiveEvents returns the events currently in effect.
func (e *Engine) ActiveEvents() []events.Active {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}
	return e.events.Active()
}

// EventHistory returns the record of every event started, oldest first.
func (e *Engine) EventHistory() []events.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}
	return e.events.History()
}

// Registry exposes the agent registry. Callers must not mutate it while the
// engine is running.
func (e *Engine) Registry() *agents.Registry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry
}
