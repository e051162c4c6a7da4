package agents

import "maps"

// Factor names one dimension an event can push on.
type Factor string

// Factors used by the event catalog and scenarios.
const (
	FactorDemand              Factor = "demand"
	FactorPrices              Factor = "prices"
	FactorEmployment          Factor = "employment"
	FactorEnergyPrices        Factor = "energy_prices"
	FactorProduction          Factor = "production"
	FactorTransport           Factor = "transport"
	FactorHealthcare          Factor = "healthcare"
	FactorHousing             Factor = "housing"
	FactorInfrastructure      Factor = "infrastructure"
	FactorInsurance           Factor = "insurance"
	FactorConstruction        Factor = "construction"
	FactorEfficiency          Factor = "efficiency"
	FactorInnovation          Factor = "innovation"
	FactorCosts               Factor = "costs"
	FactorServices            Factor = "services"
	FactorEnvironmentalCosts  Factor = "environmental_costs"
	FactorCompliance          Factor = "compliance"
	FactorCitizenSatisfaction Factor = "citizen_satisfaction"
	FactorEconomicHealth      Factor = "economic_health"
	FactorEnvironmentalHealth Factor = "environmental_health"
	FactorSocialStability     Factor = "social_stability"
	FactorCrimeRate           Factor = "crime_rate"
	FactorTransportEfficiency Factor = "transport_efficiency"
	FactorTransportCosts      Factor = "transport_costs"
	FactorEnergyEfficiency    Factor = "energy_efficiency"
	FactorEnergyCosts         Factor = "energy_costs"
)

// Impact maps factors to signed magnitudes. Missing factors read as zero.
type Impact map[Factor]float64

// Get returns the magnitude for f.
func (im Impact) Get(f Factor) float64 {
	return im[f]
}

// Clone returns an independent copy.
func (im Impact) Clone() Impact {
	if im == nil {
		return Impact{}
	}
	return maps.Clone(im)
}

// AddAll accumulates other into im.
func (im Impact) AddAll(other Impact) {
	for f, v := range other {
		im[f] += v
	}
}

// Sum returns the signed total over all factors.
func (im Impact) Sum() float64 {
	total := 0.0
	for _, v := range im {
		total += v
	}
	return total
}

// PricePressure is the general price factor plus the sector-specific one
// (e.g. prices + energy_prices).
func (im Impact) PricePressure(s Sector) float64 {
	return im[FactorPrices] + im[Factor(s.String()+"_prices")]
}

// SectorActivity is the factor named after the sector itself
// (e.g. transport −0.5 during a pandemic).
func (im Impact) SectorActivity(s Sector) float64 {
	return im[Factor(s.String())]
}

// CostPressure combines the cost factors relevant to a sector.
func (im Impact) CostPressure(s Sector) float64 {
	return im[FactorCosts] + im[FactorEnvironmentalCosts] + im[Factor(s.String()+"_costs")]
}

// InfraEfficiency is the efficiency factor for an infrastructure kind
// (e.g. energy_efficiency) plus the general one.
func (im Impact) InfraEfficiency(k InfraKind) float64 {
	return im[FactorEfficiency] + im[Factor(k.String()+"_efficiency")]
}
