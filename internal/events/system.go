package events

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/talgya/mini-city/internal/agents"
)

// ErrInvalidDuration is returned when an event is activated for fewer than
// one tick.
var ErrInvalidDuration = errors.New("events: duration must be at least one tick")

// History bounds: once the record exceeds historyCap entries only the most
// recent historyKeep are kept.
const (
	historyCap  = 1000
	historyKeep = 500
)

// Active is an event currently applying its impact.
type Active struct {
	ID          uint64        `json:"id"`
	Kind        Kind          `json:"kind"`
	Description string        `json:"description"`
	Impact      agents.Impact `json:"impact"`
	Duration    int           `json:"duration"`
	Remaining   int           `json:"remaining"` // never negative
	Start       uint64        `json:"start_tick"`
	Scripted    bool          `json:"scripted"`
}

// Record is a history entry for an activated event.
type Record struct {
	ID          uint64    `json:"id"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"`
	Start       uint64    `json:"start_tick"`
	SimTime     time.Time `json:"sim_time"`
	Scripted    bool      `json:"scripted"`
}

// System owns the active event set. It is driven by the scheduler goroutine
// only and is not safe for concurrent use.
type System struct {
	catalog []Template
	rng     *rand.Rand
	log     *slog.Logger

	active  []*Active
	history []Record
	nextID  uint64
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger for event start and finish records.
func WithLogger(l *slog.Logger) Option { return func(s *System) { s.log = l } }

// NewSystem creates an event system over catalog using rng for triggering.
func NewSystem(catalog []Template, rng *rand.Rand, opts ...Option) *System {
	s := &System{catalog: slices.Clone(catalog), rng: rng, log: slog.Default(), nextID: 1}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Advance counts down every event that has already applied in an earlier
// tick and removes those reaching zero. An event starting at tick n
// therefore applies in ticks n through n+D−1. Returns the expired events.
func (s *System) Advance(tick uint64) []Active {
	var expired []Active
	kept := s.active[:0]
	for _, ev := range s.active {
		if ev.Start < tick {
			ev.Remaining--
		}
		if ev.Remaining <= 0 {
			ev.Remaining = 0
			expired = append(expired, *ev)
			s.log.Info("event finished", "event", ev.Kind, "id", ev.ID, "tick", tick)
			continue
		}
		kept = append(kept, ev)
	}
	clear(s.active[len(kept):])
	s.active = kept
	return expired
}

// Maybe triggers one event with probability p, chosen by weight among
// catalog kinds not already active. The event applies from tick onward.
func (s *System) Maybe(tick uint64, p float64, now time.Time) (Active, bool) {
	if p <= 0 || s.rng.Float64() >= p {
		return Active{}, false
	}
	var (
		candidates []Template
		total      float64
	)
	for _, t := range s.catalog {
		if s.IsActive(t.Kind) || t.Weight <= 0 {
			continue
		}
		candidates = append(candidates, t)
		total += t.Weight
	}
	if len(candidates) == 0 {
		return Active{}, false
	}

	pick := s.rng.Float64() * total
	chosen := candidates[len(candidates)-1]
	for _, t := range candidates {
		pick -= t.Weight
		if pick < 0 {
			chosen = t
			break
		}
	}
	duration := chosen.MinDuration
	if span := chosen.MaxDuration - chosen.MinDuration; span > 0 {
		duration += s.rng.Intn(span + 1)
	}
	ev, err := s.activate(chosen, duration, tick, now, false)
	if err != nil {
		return Active{}, false
	}
	return ev, true
}

// Activate starts t for exactly duration ticks beginning at start.
func (s *System) Activate(t Template, duration int, start uint64, now time.Time) (Active, error) {
	return s.activate(t, duration, start, now, true)
}

func (s *System) activate(t Template, duration int, start uint64, now time.Time, scripted bool) (Active, error) {
	if duration < 1 {
		return Active{}, fmt.Errorf("activate %s for %d ticks: %w", t.Kind, duration, ErrInvalidDuration)
	}
	ev := &Active{
		ID:          s.nextID,
		Kind:        t.Kind,
		Description: t.Description,
		Impact:      t.Impact.Clone(),
		Duration:    duration,
		Remaining:   duration,
		Start:       start,
		Scripted:    scripted,
	}
	s.nextID++
	s.active = append(s.active, ev)

	s.history = append(s.history, Record{
		ID: ev.ID, Kind: ev.Kind, Description: ev.Description,
		Duration: duration, Start: start, SimTime: now, Scripted: scripted,
	})
	if len(s.history) > historyCap {
		s.history = slices.Clone(s.history[len(s.history)-historyKeep:])
	}

	s.log.Info("event started", "event", ev.Kind, "id", ev.ID, "duration", duration, "tick", start, "scripted", scripted)
	return *ev, nil
}

// IsActive reports whether an event of kind k is active.
func (s *System) IsActive(k Kind) bool {
	return slices.ContainsFunc(s.active, func(ev *Active) bool { return ev.Kind == k })
}

// Impact returns the summed impact of all active events. Each event applies
// at full magnitude for its whole window.
func (s *System) Impact() agents.Impact {
	sum := agents.Impact{}
	for _, ev := range s.active {
		sum.AddAll(ev.Impact)
	}
	return sum
}

// Active returns copies of the active events in activation order.
func (s *System) Active() []Active {
	out := make([]Active, len(s.active))
	for i, ev := range s.active {
		out[i] = *ev
		out[i].Impact = ev.Impact.Clone()
	}
	return out
}

// ActiveKinds returns the names of the active events.
func (s *System) ActiveKinds() []string {
	out := make([]string, len(s.active))
	for i, ev := range s.active {
		out[i] = ev.Kind.String()
	}
	return out
}

// Count returns the number of active events.
func (s *System) Count() int { return len(s.active) }

// History returns the activation record, oldest first.
func (s *System) History() []Record { return slices.Clone(s.history) }

// Reset clears active events and history.
func (s *System) Reset() {
	s.active = nil
	s.history = nil
}

// Notification builds the market_event message announcing ev.
func Notification(ev Active, now time.Time, tick uint64) agents.Message {
	return agents.Message{
		Kind: agents.MsgMarketEvent,
		Payload: agents.Payload{
			Event:    ev.Kind.String(),
			Impact:   ev.Impact.Clone(),
			Severity: clampSeverity(ev.Impact),
			Topic:    ev.Description,
		},
		Priority: agents.PriorityMedium,
		Created:  now,
		Cycle:    tick,
	}
}

func clampSeverity(im agents.Impact) float64 {
	total := 0.0
	for _, v := range im {
		if v < 0 {
			v = -v
		}
		total += v
	}
	return min(1, total)
}
