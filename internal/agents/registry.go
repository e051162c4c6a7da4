package agents

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/talgya/mini-city/internal/world"
)

var (
	// ErrDuplicateID is returned when an id is already registered.
	ErrDuplicateID = errors.New("agents: duplicate agent id")
	// ErrUnknownAgent is returned for ids not in the registry.
	ErrUnknownAgent = errors.New("agents: unknown agent")
)

// Registry owns every live agent. Lookup, insertion, and removal are O(1);
// views share the same agent instances. Add, Remove, and Move run between
// ticks; Send and the read methods are safe during a tick.
type Registry struct {
	mu     sync.RWMutex
	bounds world.Bounds

	all    []Agent
	slot   map[AgentID]int
	byType [NumTypes][]Agent
	tslot  map[AgentID]int
}

// NewRegistry creates an empty registry for a city of the given bounds.
func NewRegistry(bounds world.Bounds) *Registry {
	return &Registry{
		bounds: bounds,
		slot:   make(map[AgentID]int),
		tslot:  make(map[AgentID]int),
	}
}

// Bounds returns the city extent.
func (r *Registry) Bounds() world.Bounds { return r.bounds }

// Add registers a. The agent's position is clamped to the city bounds.
func (r *Registry) Add(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, ok := r.slot[id]; ok {
		return fmt.Errorf("add %s: %w", id, ErrDuplicateID)
	}
	b := a.Common()
	b.Position = r.bounds.Clamp(b.Position)

	r.slot[id] = len(r.all)
	r.all = append(r.all, a)
	t := a.Type()
	r.tslot[id] = len(r.byType[t])
	r.byType[t] = append(r.byType[t], a)
	return nil
}

// Remove unregisters id by swapping the last agent into its slot.
func (r *Registry) Remove(id AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.slot[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownAgent)
	}
	t := r.all[i].Type()

	last := len(r.all) - 1
	if i != last {
		r.all[i] = r.all[last]
		r.slot[r.all[i].ID()] = i
	}
	r.all[last] = nil
	r.all = r.all[:last]
	delete(r.slot, id)

	ti := r.tslot[id]
	ts := r.byType[t]
	tlast := len(ts) - 1
	if ti != tlast {
		ts[ti] = ts[tlast]
		r.tslot[ts[ti].ID()] = ti
	}
	ts[tlast] = nil
	r.byType[t] = ts[:tlast]
	delete(r.tslot, id)
	return nil
}

// Get returns the agent with id.
func (r *Registry) Get(id AgentID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.slot[id]
	if !ok {
		return nil, false
	}
	return r.all[i], true
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// All returns a view of every agent.
func (r *Registry) All() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.all)
}

// OfType returns a view of agents of type t.
func (r *Registry) OfType(t Type) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byType[t])
}

// Citizens returns the citizen view with concrete types.
func (r *Registry) Citizens() []*Citizen { return typed[*Citizen](r, TypeCitizen) }

// Businesses returns the business view with concrete types.
func (r *Registry) Businesses() []*Business { return typed[*Business](r, TypeBusiness) }

// Governments returns the government view with concrete types.
func (r *Registry) Governments() []*Government { return typed[*Government](r, TypeGovernment) }

// Infrastructure returns the infrastructure view with concrete types.
func (r *Registry) Infrastructure() []*Infrastructure {
	return typed[*Infrastructure](r, TypeInfrastructure)
}

func typed[T Agent](r *Registry, t Type) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.byType[t]))
	for _, a := range r.byType[t] {
		if v, ok := a.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Counts returns live counts per type.
func (r *Registry) Counts() TypeCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c TypeCounts
	for t := range c {
		c[t] = len(r.byType[t])
	}
	return c
}

// Neighbor is a FindNearby result.
type Neighbor struct {
	Agent    Agent
	Distance float64
}

// FindNearby returns agents of type t within radius of id, nearest first.
// The agent itself is excluded.
func (r *Registry) FindNearby(id AgentID, t Type, radius float64) ([]Neighbor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.slot[id]
	if !ok {
		return nil, fmt.Errorf("find nearby %s: %w", id, ErrUnknownAgent)
	}
	from := r.all[i].Common().Position

	var out []Neighbor
	for _, a := range r.byType[t] {
		if a.ID() == id {
			continue
		}
		if d := from.Distance(a.Common().Position); d <= radius {
			out = append(out, Neighbor{Agent: a, Distance: d})
		}
	}
	slices.SortStableFunc(out, func(a, b Neighbor) int { return cmp.Compare(a.Distance, b.Distance) })
	return out, nil
}

// Send delivers msg into the receiver's mailbox. A full mailbox may drop
// msg; that is reported through the mailbox's Dropped count, not as an error.
func (r *Registry) Send(msg Message) error {
	r.mu.RLock()
	i, ok := r.slot[msg.To]
	var box *Mailbox
	if ok {
		box = r.all[i].Common().Mailbox
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("send %s to %s: %w", msg.Kind, msg.To, ErrUnknownAgent)
	}
	box.Push(msg)
	return nil
}

// Broadcast sends a copy of msg to every agent. Returns the number delivered.
func (r *Registry) Broadcast(msg Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.all {
		m := msg
		m.To = a.ID()
		if a.Common().Mailbox.Push(m) {
			n++
		}
	}
	return n
}

// Move relocates id, clamped to the city bounds.
func (r *Registry) Move(id AgentID, p world.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.slot[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrUnknownAgent)
	}
	r.all[i].Common().Position = r.bounds.Clamp(p)
	return nil
}
