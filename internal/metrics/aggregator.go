// Package metrics derives city-wide indicators from agent snapshots and keeps
// a bounded history of them.
package metrics

import (
	"slices"
	"time"

	"github.com/talgya/mini-city/internal/agents"
)

// Thresholds for crime estimation. A stressed citizen counts fully, an
// unhappy one counts half.
const (
	crimeStress        = 0.7
	crimeSatisfaction  = 0.3
	crimeStressWeight  = 1.0
	crimeUnhappyWeight = 0.5
)

// Snapshot is the city state at one cycle.
type Snapshot struct {
	SimTime              time.Time         `json:"sim_time"`
	Cycle                uint64            `json:"cycle"`
	Population           int               `json:"population"`
	Counts               agents.TypeCounts `json:"agent_counts"`
	TotalIncome          float64           `json:"total_income"`
	UnemploymentRate     float64           `json:"unemployment_rate"`
	IncomeInequality     float64           `json:"income_inequality"` // Gini, 0–1
	CrimeRate            float64           `json:"crime_rate"`
	AverageStress        float64           `json:"average_stress"`
	EnvironmentalHealth  float64           `json:"environmental_health"`
	CitizenSatisfaction  float64           `json:"citizen_satisfaction"`
	EconomicHealth       float64           `json:"economic_health"`
	InfrastructureHealth float64           `json:"infrastructure_health"`
	GovernmentEfficiency float64           `json:"government_efficiency"`
	ActiveEvents         int               `json:"active_events"`
}

// Indicators converts the snapshot into the aggregates agents read from
// their context.
func (s Snapshot) Indicators() agents.CityIndicators {
	return agents.CityIndicators{
		CitizenSatisfaction:  s.CitizenSatisfaction,
		UnemploymentRate:     s.UnemploymentRate,
		IncomeInequality:     s.IncomeInequality,
		CrimeRate:            s.CrimeRate,
		EnvironmentalImpact:  1 - s.EnvironmentalHealth,
		EconomicHealth:       s.EconomicHealth,
		InfrastructureHealth: s.InfrastructureHealth,
		TotalIncome:          s.TotalIncome,
	}
}

// Value returns a named indicator. Used by scenario comparisons.
func (s Snapshot) Value(name string) (float64, bool) {
	switch name {
	case "population":
		return float64(s.Population), true
	case "citizen_satisfaction":
		return s.CitizenSatisfaction, true
	case "economic_health":
		return s.EconomicHealth, true
	case "infrastructure_health":
		return s.InfrastructureHealth, true
	case "environmental_health":
		return s.EnvironmentalHealth, true
	case "unemployment_rate":
		return s.UnemploymentRate, true
	case "crime_rate":
		return s.CrimeRate, true
	case "government_efficiency":
		return s.GovernmentEfficiency, true
	}
	return 0, false
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

func (m mean) or(empty float64) float64 {
	if m.n == 0 {
		return empty
	}
	return m.sum / float64(m.n)
}

// Compute aggregates a snapshot from the agents' state copies. It reads
// State() only, so it is safe to call between ticks on a live registry view.
func Compute(view []agents.Agent, cycle uint64, simTime time.Time) Snapshot {
	snap := Snapshot{SimTime: simTime, Cycle: cycle}

	var (
		satisfaction, stress, margin, infra, gov, env mean
		unemployed                                    int
		crime                                         float64
		incomes                                       []float64
	)
	for _, a := range view {
		snap.Counts[a.Type()]++
		switch st := a.State().(type) {
		case agents.CitizenState:
			satisfaction.add(st.Satisfaction)
			stress.add(st.Stress)
			incomes = append(incomes, st.Income)
			snap.TotalIncome += st.Income
			if !st.Employed {
				unemployed++
			}
			switch {
			case st.Stress > crimeStress:
				crime += crimeStressWeight
			case st.Satisfaction < crimeSatisfaction:
				crime += crimeUnhappyWeight
			}
		case agents.BusinessState:
			margin.add(st.ProfitMargin)
			env.add(st.EnvironmentalImpact)
		case agents.InfrastructureState:
			infra.add(st.SystemHealth)
		case agents.GovernmentState:
			gov.add(st.Efficiency)
		}
	}

	snap.Population = snap.Counts[agents.TypeCitizen]
	if snap.Population > 0 {
		pop := float64(snap.Population)
		snap.UnemploymentRate = float64(unemployed) / pop
		snap.CrimeRate = min(1, crime/pop)
	}
	snap.IncomeInequality = Gini(incomes)
	snap.AverageStress = stress.or(0)
	snap.CitizenSatisfaction = satisfaction.or(0)
	snap.EconomicHealth = margin.or(0)
	snap.EnvironmentalHealth = 1 - env.or(0)
	snap.InfrastructureHealth = infra.or(0)
	snap.GovernmentEfficiency = gov.or(0)
	return snap
}

// Gini returns the Gini coefficient of values, 0 for fewer than two values
// or a zero total. Negative values are treated as 0.
func Gini(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = max(0, v)
	}
	slices.Sort(sorted)

	var total, weighted float64
	for i, v := range sorted {
		total += v
		weighted += float64(i+1) * v
	}
	if total == 0 {
		return 0
	}
	n := float64(len(sorted))
	return (2*weighted)/(n*total) - (n+1)/n
}
