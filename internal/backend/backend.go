// Package backend runs the bulk movement, collision and interaction pass over
// a flat agent population. Two implementations share one contract: a native
// struct-of-slices fast path and a map-based fallback. Engine selects one at
// construction and can migrate between them at runtime.
package backend

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/perfmon"
)

var (
	// ErrNativeUnavailable is returned when the native backend cannot be
	// constructed in this build or with these parameters.
	ErrNativeUnavailable = errors.New("backend: native implementation unavailable")
	// ErrUnknownBackend is returned for a kind name that is neither native
	// nor fallback.
	ErrUnknownBackend = errors.New("backend: unknown kind")
)

// Kind names an implementation.
type Kind string

const (
	KindNative   Kind = "native"
	KindFallback Kind = "fallback"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNative, KindFallback:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownBackend)
}

// ID identifies an agent within one backend.
type ID uint64

// AgentKind is the type of a bulk agent.
type AgentKind uint8

const (
	Citizen AgentKind = iota
	Business
	Government
)

// NumAgentKinds is the number of bulk agent kinds.
const NumAgentKinds = 3

var agentKindNames = [NumAgentKinds]string{"citizen", "business", "government"}

func (k AgentKind) String() string {
	if int(k) < len(agentKindNames) {
		return agentKindNames[k]
	}
	return fmt.Sprintf("agent(%d)", k)
}

// MarshalText encodes the kind by name.
func (k AgentKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// CitizenParams places a citizen.
type CitizenParams struct {
	X, Y             float64
	RiskTolerance    float64 // scales x movement
	SocialPreference float64 // scales y movement
}

// BusinessParams places a business.
type BusinessParams struct {
	X, Y         float64
	BusinessType string
}

// GovernmentParams places a government.
type GovernmentParams struct {
	X, Y     float64
	Policies map[string]float64
}

// Position is one agent's kinematic state.
type Position struct {
	ID     ID        `json:"id"`
	Kind   AgentKind `json:"type"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	VX     float64   `json:"velocity_x"`
	VY     float64   `json:"velocity_y"`
	Energy float64   `json:"energy"` // 0–100
}

// Stats summarizes a population.
type Stats struct {
	Total       int                `json:"total_agents"`
	CountByType [NumAgentKinds]int `json:"count_by_type"`
	AvgEnergy   float64            `json:"avg_energy"`
	Width       float64            `json:"city_width"`
	Height      float64            `json:"city_height"`
}

// TickResult reports one backend tick.
type TickResult struct {
	AgentsUpdated          int            `json:"agents_updated"`
	InteractionsCalculated int            `json:"interactions_calculated"`
	Sample                 perfmon.Sample `json:"performance"`
}

// Record is the full state of one agent, used to migrate between
// implementations.
type Record struct {
	Position
	RiskTolerance    float64
	SocialPreference float64
	BusinessType     string
	Revenue          float64
	Customers        float64
	Policies         map[string]float64
	Budget           float64
	Approval         float64
}

// Backend is the shared contract. Implementations are not safe for
// concurrent use; Engine serializes access.
type Backend interface {
	AddCitizen(CitizenParams) ID
	AddBusiness(BusinessParams) ID
	AddGovernment(GovernmentParams) ID
	Tick(dt float64) TickResult
	Positions() []Position
	Stats() Stats
	Kind() Kind
	Export() []Record
	Import([]Record)
	Len() int
}

// maxNativeCapacity bounds the native backend's up-front allocation.
const maxNativeCapacity = 1 << 20

// Params configures an implementation.
type Params struct {
	Width             float64
	Height            float64
	CollisionRadius   float64
	InteractionRadius float64
	Capacity          int // pre-allocation hint
	Rand              *rand.Rand
}

// ParamsFrom builds Params from configuration.
func ParamsFrom(cfg config.BackendConfig, rng *rand.Rand) Params {
	return Params{
		Width:             cfg.Width,
		Height:            cfg.Height,
		CollisionRadius:   cfg.CollisionRadius,
		InteractionRadius: cfg.InteractionRadius,
		Capacity:          cfg.Capacity,
		Rand:              rng,
	}
}

func (p Params) valid() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("extent %gx%g must be positive", p.Width, p.Height)
	}
	if p.Capacity < 0 {
		return fmt.Errorf("capacity %d must be non-negative", p.Capacity)
	}
	if p.Rand == nil {
		return errors.New("nil random source")
	}
	return nil
}

// newImpl builds the requested implementation.
func newImpl(k Kind, p Params) (Backend, error) {
	switch k {
	case KindNative:
		return newNative(p)
	case KindFallback:
		return newFallback(p)
	}
	return nil, fmt.Errorf("%q: %w", k, ErrUnknownBackend)
}
