// Package economy closes the supply/demand feedback loop: it surveys sector
// supply and demand and nudges business prices toward balance.
package economy

import (
	"github.com/talgya/mini-city/internal/agents"
)

// Clearing thresholds on the supply/demand ratio and the price step applied
// when a sector is out of balance.
const (
	OversupplyRatio  = 1.2
	UndersupplyRatio = 0.8
	PriceCut         = 0.98
	PriceRaise       = 1.02
)

// Pricer is a seller whose price the market may adjust.
type Pricer interface {
	SectorOf() agents.Sector
	Output() float64
	CurrentPrice() float64
	ScalePrice(factor float64) // implementations clamp to their band
}

// Demander is a buyer with a need level per sector.
type Demander interface {
	NeedLevel(s agents.Sector) float64
}

// Direction is the price move applied to a sector.
type Direction int8

const (
	Hold  Direction = 0
	Lower Direction = -1
	Raise Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Lower:
		return "lower"
	case Raise:
		return "raise"
	}
	return "hold"
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// SectorEntry is the supply/demand state of one sector.
type SectorEntry struct {
	Sector     agents.Sector `json:"sector"`
	Supply     float64       `json:"supply"`
	Demand     float64       `json:"demand"`
	Ratio      float64       `json:"ratio"` // supply/demand; 0 when demand is 0
	Businesses int           `json:"businesses"`
	MeanPrice  float64       `json:"mean_price"`
	Direction  Direction     `json:"direction"`
}

// Report is the result of one survey or clearing pass.
type Report struct {
	Sectors  [agents.NumSectors]SectorEntry `json:"sectors"`
	Adjusted int                            `json:"adjusted"` // businesses repriced
}

// Survey sums production and need per sector without touching prices.
func Survey(businesses []Pricer, citizens []Demander) Report {
	var r Report
	for _, s := range agents.AllSectors {
		r.Sectors[s].Sector = s
	}
	for _, c := range citizens {
		for _, s := range agents.AllSectors {
			r.Sectors[s].Demand += c.NeedLevel(s)
		}
	}
	for _, b := range businesses {
		e := &r.Sectors[b.SectorOf()]
		e.Supply += b.Output()
		e.MeanPrice += b.CurrentPrice()
		e.Businesses++
	}
	for i := range r.Sectors {
		e := &r.Sectors[i]
		if e.Businesses > 0 {
			e.MeanPrice /= float64(e.Businesses)
		}
		if e.Demand > 0 {
			e.Ratio = e.Supply / e.Demand
		}
		e.Direction = direction(e.Supply, e.Demand)
	}
	return r
}

// direction decides the price move for a sector. Zero demand with positive
// supply counts as oversupply; an empty sector holds.
func direction(supply, demand float64) Direction {
	if demand <= 0 {
		if supply > 0 {
			return Lower
		}
		return Hold
	}
	switch ratio := supply / demand; {
	case ratio > OversupplyRatio:
		return Lower
	case ratio < UndersupplyRatio:
		return Raise
	}
	return Hold
}

// Clear surveys the market and moves every business price in an unbalanced
// sector by one step. It must run while no agent is updating.
func Clear(businesses []Pricer, citizens []Demander) Report {
	r := Survey(businesses, citizens)
	for _, b := range businesses {
		switch r.Sectors[b.SectorOf()].Direction {
		case Lower:
			b.ScalePrice(PriceCut)
		case Raise:
			b.ScalePrice(PriceRaise)
		default:
			continue
		}
		r.Adjusted++
	}
	return r
}

// Participants converts typed registry views into market participants.
func Participants(businesses []*agents.Business, citizens []*agents.Citizen) ([]Pricer, []Demander) {
	ps := make([]Pricer, len(businesses))
	for i, b := range businesses {
		ps[i] = b
	}
	ds := make([]Demander, len(citizens))
	for i, c := range citizens {
		ds[i] = c
	}
	return ps, ds
}
