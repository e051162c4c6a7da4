// Package events holds the city event catalog and the system that triggers,
// applies, and expires events.
package events

import (
	"fmt"

	"github.com/talgya/mini-city/internal/agents"
)

// Kind is a closed set of event types.
type Kind uint8

const (
	EconomicBoom Kind = iota
	EconomicRecession
	EnergyCrisis
	Pandemic
	NaturalDisaster
	TechnologicalBreakthrough
	PopulationGrowth
	EnvironmentalRegulation
	SocialInequality
)

// NumKinds is the number of event kinds.
const NumKinds = 9

var kindNames = [NumKinds]string{
	"economic_boom", "economic_recession", "energy_crisis", "pandemic",
	"natural_disaster", "technological_breakthrough", "population_growth",
	"environmental_regulation", "social_inequality",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("event(%d)", k)
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseKind resolves an event kind name.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// Template describes one catalog entry.
type Template struct {
	Kind        Kind
	Description string
	Impact      agents.Impact
	MinDuration int     // ticks, inclusive
	MaxDuration int     // ticks, inclusive
	Weight      float64 // relative selection weight
}

// durations returns [d−25%, d+25%] rounded, at least 1.
func durations(d int) (int, int) {
	lo := max(1, d*3/4)
	hi := max(lo, d*5/4)
	return lo, hi
}

func template(k Kind, desc string, impact agents.Impact, duration int, weight float64) Template {
	lo, hi := durations(duration)
	return Template{Kind: k, Description: desc, Impact: impact, MinDuration: lo, MaxDuration: hi, Weight: weight}
}

// Catalog returns the events that can trigger at random. Social inequality
// is scenario-only and not listed.
func Catalog() []Template {
	return []Template{
		template(EconomicBoom, "Economic boom: rising demand",
			agents.Impact{agents.FactorDemand: 0.3, agents.FactorPrices: 0.1, agents.FactorEmployment: 0.2}, 20, 0.05),
		template(EconomicRecession, "Economic recession: falling demand",
			agents.Impact{agents.FactorDemand: -0.3, agents.FactorPrices: -0.2, agents.FactorEmployment: -0.3}, 30, 0.08),
		template(EnergyCrisis, "Energy crisis: energy prices spike",
			agents.Impact{agents.FactorEnergyPrices: 0.5, agents.FactorProduction: -0.2, agents.FactorTransport: -0.3}, 15, 0.06),
		template(Pandemic, "Pandemic: economic activity contracts",
			agents.Impact{agents.FactorDemand: -0.4, agents.FactorHealthcare: 0.6, agents.FactorTransport: -0.5}, 50, 0.03),
		template(NaturalDisaster, "Natural disaster: infrastructure damaged",
			agents.Impact{agents.FactorInfrastructure: -0.4, agents.FactorInsurance: 0.3, agents.FactorConstruction: 0.4}, 25, 0.04),
		template(TechnologicalBreakthrough, "Technological breakthrough: efficiency gains",
			agents.Impact{agents.FactorEfficiency: 0.3, agents.FactorInnovation: 0.4, agents.FactorCosts: -0.2}, 40, 0.07),
		template(PopulationGrowth, "Population growth: more demand for services",
			agents.Impact{agents.FactorDemand: 0.2, agents.FactorHousing: 0.3, agents.FactorServices: 0.2}, 60, 0.06),
		template(EnvironmentalRegulation, "New environmental regulation",
			agents.Impact{agents.FactorEnvironmentalCosts: 0.3, agents.FactorInnovation: 0.2, agents.FactorCompliance: 0.4}, 100, 0.05),
	}
}
