// Package scenario defines the closed set of what-if interventions that can
// be injected into a running city and the comparison of before/after state.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/metrics"
)

// Kind is a closed set of scenarios.
type Kind uint8

const (
	TaxIncrease Kind = iota
	EnergyCrisis
	Pandemic
	EconomicBoom
	InfrastructureFailure
	PopulationGrowth
	EnvironmentalRegulation
	AutonomousTransport
	SmartGrid
	SocialInequality
)

// NumKinds is the number of scenarios.
const NumKinds = 10

type entry struct {
	name        string
	description string
}

var catalog = [NumKinds]entry{
	{"tax_increase", "Raise the income tax rate by 10 points (capped at 50%)"},
	{"energy_crisis", "Energy prices spike and production and transport contract"},
	{"pandemic", "Demand and transport collapse while healthcare load rises"},
	{"economic_boom", "Demand, prices and employment rise across the city"},
	{"infrastructure_failure", "About 30% of infrastructure units fail and lose half their efficiency"},
	{"population_growth", "Twenty new citizens move into the city"},
	{"environmental_regulation", "Stricter environmental rules raise business costs and lower efficiency"},
	{"autonomous_transport", "Autonomous vehicles make transport infrastructure cheaper and more efficient"},
	{"smart_grid", "A smart grid makes energy infrastructure more efficient"},
	{"social_inequality", "Income gaps widen: 30% of citizens lose income while 10% gain"},
}

func (k Kind) String() string {
	if int(k) < len(catalog) {
		return catalog[k].name
	}
	return fmt.Sprintf("scenario(%d)", k)
}

// MarshalText encodes the scenario by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a scenario name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Description returns a one-line summary of the intervention.
func (k Kind) Description() string {
	if int(k) < len(catalog) {
		return catalog[k].description
	}
	return ""
}

// All lists every scenario in catalog order.
func All() []Kind {
	out := make([]Kind, NumKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// UnknownError reports a scenario name outside the catalog.
type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string {
	names := make([]string, NumKinds)
	for i := range names {
		names[i] = catalog[i].name
	}
	return fmt.Sprintf("unknown scenario %q; valid: %s", e.Name, strings.Join(names, ", "))
}

// Parse resolves a scenario name.
func Parse(name string) (Kind, error) {
	for i, e := range catalog {
		if e.name == name {
			return Kind(i), nil
		}
	}
	return 0, &UnknownError{Name: name}
}

// EventActivator starts scripted events.
type EventActivator interface {
	Activate(t events.Template, duration int, start uint64, now time.Time) (events.Active, error)
}

// Target is the city a scenario mutates. It must not be ticking while Apply
// runs.
type Target struct {
	Registry *agents.Registry
	Spawner  *agents.Spawner
	Events   EventActivator
	Rand     *rand.Rand
	Start    uint64 // first tick the intervention applies to
	Now      time.Time
	Log      *slog.Logger // nil uses slog.Default()
}

func (t Target) logger() *slog.Logger {
	if t.Log == nil {
		return slog.Default()
	}
	return t.Log
}

// Outcome lists what an intervention changed.
type Outcome struct {
	Events   []events.Active
	Spawned  []agents.Agent
	Affected int // agents directly modified
}

// Intervention tuning.
const (
	taxDelta            = 0.1
	taxCeiling          = 0.5
	failureShare        = 0.3
	failureEfficiency   = 0.5
	growthCitizens      = 20
	regulationDelta     = 0.3
	regulationCost      = 1.2
	regulationEff       = 0.9
	transportEfficiency = 1.3
	transportCost       = 0.8
	gridEfficiency      = 1.4
	gridCost            = 1.0
	poorShare           = 0.3
	richShare           = 0.1
)

// ErrNoTicks is returned when a scenario is asked to run for no ticks.
var ErrNoTicks = errors.New("scenario: ticks must be positive")

// Apply performs the intervention. Scripted events last exactly ticks ticks
// starting at t.Start.
func Apply(k Kind, t Target, ticks int) (Outcome, error) {
	if ticks <= 0 {
		return Outcome{}, ErrNoTicks
	}
	var out Outcome
	event := func(kind events.Kind, desc string, impact agents.Impact) error {
		ev, err := t.Events.Activate(events.Template{Kind: kind, Description: desc, Impact: impact}, ticks, t.Start, t.Now)
		if err != nil {
			return fmt.Errorf("activating %s: %w", kind, err)
		}
		out.Events = append(out.Events, ev)
		return nil
	}

	var err error
	switch k {
	case TaxIncrease:
		for _, g := range t.Registry.Governments() {
			g.RaiseTax(taxDelta, taxCeiling)
			out.Affected++
		}

	case EnergyCrisis:
		err = event(events.EnergyCrisis, "Scenario: energy crisis", agents.Impact{
			agents.FactorEnergyPrices:        0.8,
			agents.FactorProduction:          -0.4,
			agents.FactorTransport:           -0.5,
			agents.FactorCitizenSatisfaction: -0.3,
		})

	case Pandemic:
		err = event(events.Pandemic, "Scenario: pandemic", agents.Impact{
			agents.FactorDemand:              -0.6,
			agents.FactorHealthcare:          0.8,
			agents.FactorTransport:           -0.7,
			agents.FactorCitizenSatisfaction: -0.4,
			agents.FactorEconomicHealth:      -0.5,
		})

	case EconomicBoom:
		err = event(events.EconomicBoom, "Scenario: economic boom", agents.Impact{
			agents.FactorDemand:              0.5,
			agents.FactorPrices:              0.2,
			agents.FactorEmployment:          0.3,
			agents.FactorCitizenSatisfaction: 0.2,
			agents.FactorEconomicHealth:      0.4,
		})

	case InfrastructureFailure:
		for _, u := range t.Registry.Infrastructure() {
			if t.Rand.Float64() < failureShare {
				u.Fail(failureEfficiency)
				out.Affected++
			}
		}

	case PopulationGrowth:
		for i := 0; i < growthCitizens; i++ {
			c := t.Spawner.Citizen()
			if err = t.Registry.Add(c); err != nil {
				return out, fmt.Errorf("adding citizen: %w", err)
			}
			out.Spawned = append(out.Spawned, c)
		}

	case EnvironmentalRegulation:
		for _, g := range t.Registry.Governments() {
			g.TightenEnvironment(regulationDelta)
			out.Affected++
		}
		for _, b := range t.Registry.Businesses() {
			b.Burden(regulationCost, regulationEff)
			out.Affected++
		}

	case AutonomousTransport:
		for _, u := range t.Registry.Infrastructure() {
			if u.Kind == agents.InfraTransport {
				u.Upgrade(transportEfficiency, transportCost)
				out.Affected++
			}
		}
		err = event(events.TechnologicalBreakthrough, "Scenario: autonomous transport", agents.Impact{
			agents.FactorTransportEfficiency: 0.3,
			agents.FactorTransportCosts:      -0.2,
			agents.FactorCitizenSatisfaction: 0.1,
			agents.FactorEconomicHealth:      0.1,
		})

	case SmartGrid:
		for _, u := range t.Registry.Infrastructure() {
			if u.Kind == agents.InfraEnergy {
				u.Upgrade(gridEfficiency, gridCost)
				out.Affected++
			}
		}
		err = event(events.TechnologicalBreakthrough, "Scenario: smart grid", agents.Impact{
			agents.FactorEnergyEfficiency:    0.4,
			agents.FactorEnergyCosts:         -0.3,
			agents.FactorEnvironmentalHealth: 0.2,
			agents.FactorCitizenSatisfaction: 0.1,
		})

	case SocialInequality:
		for _, c := range t.Registry.Citizens() {
			switch u := t.Rand.Float64(); {
			case u < poorShare:
				c.ScaleIncome(0.7, 0.2)
				out.Affected++
			case u < poorShare+richShare:
				c.ScaleIncome(1.5, -0.1)
				out.Affected++
			}
		}
		err = event(events.SocialInequality, "Scenario: social inequality", agents.Impact{
			agents.FactorSocialStability:     -0.3,
			agents.FactorCrimeRate:           0.2,
			agents.FactorCitizenSatisfaction: -0.2,
			agents.FactorEconomicHealth:      -0.1,
		})

	default:
		return out, &UnknownError{Name: k.String()}
	}
	if err != nil {
		return out, err
	}
	t.logger().Info("scenario applied", "scenario", k, "ticks", ticks, "affected", out.Affected,
		"spawned", len(out.Spawned), "events", len(out.Events))
	return out, nil
}

// Compared indicators.
var comparedMetrics = []string{
	"population", "citizen_satisfaction", "economic_health",
	"infrastructure_health", "environmental_health",
}

// Result is the before/after comparison of one scenario run.
type Result struct {
	ID         uuid.UUID          `json:"id"`
	Scenario   Kind               `json:"scenario"`
	Ticks      int                `json:"ticks"`
	StartCycle uint64             `json:"start_cycle"`
	EndCycle   uint64             `json:"end_cycle"`
	Started    time.Time          `json:"sim_started"`
	Finished   time.Time          `json:"sim_finished"`
	Before     metrics.Snapshot   `json:"initial_metrics"`
	After      metrics.Snapshot   `json:"final_metrics"`
	Changes    map[string]float64 `json:"changes"`
}

// Compare builds the change map: <metric>_change and <metric>_change_percent
// for each compared indicator (percent is 0 when the initial value is 0) and
// <type>_change for each agent population.
func Compare(before, after metrics.Snapshot) map[string]float64 {
	out := make(map[string]float64, 2*len(comparedMetrics)+agents.NumTypes)
	for _, name := range comparedMetrics {
		b, _ := before.Value(name)
		a, _ := after.Value(name)
		out[name+"_change"] = a - b
		pct := 0.0
		if b != 0 {
			pct = (a - b) / b * 100
		}
		out[name+"_change_percent"] = pct
	}
	for _, tp := range agents.AllTypes {
		out[tp.Plural()+"_change"] = float64(after.Counts[tp] - before.Counts[tp])
	}
	return out
}

// ChangeKeys returns the keys of a change map in sorted order.
func ChangeKeys(changes map[string]float64) []string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// NewRunID draws a run id from rng so seeded runs are reproducible.
func NewRunID(rng *rand.Rand) uuid.UUID {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.New()
	}
	return id
}
