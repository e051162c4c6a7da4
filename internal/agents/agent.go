package agents

import (
	"maps"
	"math/rand"
	"time"

	"github.com/talgya/mini-city/internal/world"
)

// Agent is the capability set every variant implements. The scheduler and
// registry operate only through this interface.
type Agent interface {
	ID() AgentID
	Type() Type
	Common() *Base

	// Decide chooses this tick's plan against the shared, read-only context.
	Decide(ctx *Context) Decision
	// Update advances internal state by dt, applying the plan from Decide.
	Update(dt float64)
	// HandleMessage processes one inbound message; the optional reply is
	// delivered to msg.From.
	HandleMessage(msg Message) *Message
	// State returns a serializable copy of the agent's state.
	State() any
}

var (
	_ Agent = (*Citizen)(nil)
	_ Agent = (*Business)(nil)
	_ Agent = (*Government)(nil)
	_ Agent = (*Infrastructure)(nil)
)

// Base holds the fields shared by all variants. Variants embed it.
type Base struct {
	id  AgentID
	typ Type

	Name         string             `json:"name"`
	Position     world.Point        `json:"position"`
	Resources    map[string]float64 `json:"resources"`
	Satisfaction float64            `json:"satisfaction"` // always in [0,1]
	Energy       float64            `json:"energy"`       // always in [0,1]
	Personality  Personality        `json:"personality"`

	Mailbox *Mailbox `json:"-"`

	rng     *rand.Rand // owned by this agent's task
	impact  Impact     // event impact seen at the last Decide
	cycle   uint64     // cycle of the last Decide
	simTime time.Time  // sim time of the last Decide
}

func newBase(id AgentID, typ Type, name string, pos world.Point, rng *rand.Rand) Base {
	return Base{
		id:           id,
		typ:          typ,
		Name:         name,
		Position:     pos,
		Resources:    make(map[string]float64),
		Satisfaction: 0.5,
		Energy:       1.0,
		Personality:  RandomPersonality(rng),
		Mailbox:      NewMailbox(DefaultMailboxCapacity),
		rng:          rng,
		impact:       Impact{},
	}
}

// ID returns the agent's identifier.
func (b *Base) ID() AgentID { return b.id }

// Type returns the variant tag.
func (b *Base) Type() Type { return b.typ }

// Common returns the shared state.
func (b *Base) Common() *Base { return b }

// SetSatisfaction stores v clamped to [0,1].
func (b *Base) SetSatisfaction(v float64) { b.Satisfaction = clamp01(v) }

// AdjustSatisfaction adds delta, clamped to [0,1].
func (b *Base) AdjustSatisfaction(delta float64) { b.Satisfaction = clamp01(b.Satisfaction + delta) }

// SetEnergy stores v clamped to [0,1].
func (b *Base) SetEnergy(v float64) { b.Energy = clamp01(v) }

// AdjustEnergy adds delta, clamped to [0,1].
func (b *Base) AdjustEnergy(delta float64) { b.Energy = clamp01(b.Energy + delta) }

// AddResource adds amount of the named resource.
func (b *Base) AddResource(name string, amount float64) {
	b.Resources[name] += amount
}

// ConsumeResource removes amount if enough is held. Returns false otherwise.
func (b *Base) ConsumeResource(name string, amount float64) bool {
	have, ok := b.Resources[name]
	if !ok || have < amount {
		return false
	}
	b.Resources[name] = have - amount
	return true
}

// observe records the context fields an agent's Update and handlers need.
func (b *Base) observe(ctx *Context) {
	b.impact = ctx.Impact
	if b.impact == nil {
		b.impact = Impact{}
	}
	b.cycle = ctx.Cycle
	b.simTime = ctx.SimTime
}

// message builds an outbound message stamped with the last observed time.
func (b *Base) message(to AgentID, kind MessageKind, p Payload, pri Priority) Message {
	return Message{
		From:     b.id,
		To:       to,
		Kind:     kind,
		Payload:  p,
		Priority: pri,
		Created:  b.simTime,
		Cycle:    b.cycle,
	}
}

// reply builds a response to msg, or nil when msg has no sender.
func (b *Base) reply(msg Message, kind MessageKind, p Payload) *Message {
	if msg.From == "" {
		return nil
	}
	r := b.message(msg.From, kind, p, msg.Priority)
	return &r
}

// handleDefault acknowledges kinds a variant does not understand. Replies
// themselves are never answered.
func (b *Base) handleDefault(msg Message) *Message {
	switch msg.Kind {
	case MsgAcknowledgment, MsgPurchaseAccepted, MsgPurchaseDeclined, MsgMarketEvent:
		return nil
	}
	return b.reply(msg, MsgAcknowledgment, Payload{Topic: msg.Kind.String()})
}

// BaseState is the serialized form of Base.
type BaseState struct {
	ID           AgentID            `json:"id"`
	Type         Type               `json:"type"`
	Name         string             `json:"name"`
	Position     world.Point        `json:"position"`
	Resources    map[string]float64 `json:"resources"`
	Satisfaction float64            `json:"satisfaction"`
	Energy       float64            `json:"energy"`
	Personality  Personality        `json:"personality"`
	Pending      int                `json:"pending_messages"`
}

func (b *Base) baseState() BaseState {
	return BaseState{
		ID:           b.id,
		Type:         b.typ,
		Name:         b.Name,
		Position:     b.Position,
		Resources:    maps.Clone(b.Resources),
		Satisfaction: b.Satisfaction,
		Energy:       b.Energy,
		Personality:  b.Personality,
		Pending:      b.Mailbox.Len(),
	}
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
