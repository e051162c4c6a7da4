package agents

import (
	"math"
	"time"

	"github.com/talgya/mini-city/internal/world"
)

// CityIndicators are the city-wide aggregates agents react to. They are
// computed by the metrics aggregator and copied into each tick's context.
type CityIndicators struct {
	CitizenSatisfaction  float64 `json:"citizen_satisfaction"`
	UnemploymentRate     float64 `json:"unemployment_rate"`
	IncomeInequality     float64 `json:"income_inequality"`
	CrimeRate            float64 `json:"crime_rate"`
	EnvironmentalImpact  float64 `json:"environmental_impact"`
	EconomicHealth       float64 `json:"economic_health"`
	InfrastructureHealth float64 `json:"infrastructure_health"`
	TotalIncome          float64 `json:"total_income"`
}

// Listing is one agent's public entry in the context directory.
type Listing struct {
	ID       AgentID
	Type     Type
	Position world.Point
	Sector   Sector    // businesses
	Price    float64   // businesses
	Infra    InfraKind // infrastructure
	Health   float64   // infrastructure system health
}

// Context is the immutable per-tick snapshot shared by every agent task.
// Agents must treat all fields as read-only.
type Context struct {
	Cycle     uint64
	SimTime   time.Time
	Hour      int
	DeltaTime float64

	Counts TypeCounts

	// Market state per sector, from the previous clearing plus live prices.
	Demand           [NumSectors]float64
	Supply           [NumSectors]float64
	AvgPrice         [NumSectors]float64
	SectorBusinesses [NumSectors]int

	Impact       Impact
	ActiveEvents []string
	City         CityIndicators

	listings  []Listing
	byType    [NumTypes][]int
	bySector  [NumSectors][]int
	infraKind [NumInfraKinds][]int
}

// ContextParams are the inputs the scheduler supplies for a tick.
type ContextParams struct {
	Cycle        uint64
	SimTime      time.Time
	DeltaTime    float64
	Impact       Impact
	ActiveEvents []string
	City         CityIndicators
	// Demand and Supply come from the last market clearing; zero before the
	// first one.
	Demand [NumSectors]float64
	Supply [NumSectors]float64
}

// NewContext builds the tick snapshot from the current agent view. Reading
// agents here is safe because no agent task is running yet.
func NewContext(view []Agent, p ContextParams) *Context {
	ctx := &Context{
		Cycle:        p.Cycle,
		SimTime:      p.SimTime,
		Hour:         p.SimTime.Hour(),
		DeltaTime:    p.DeltaTime,
		Demand:       p.Demand,
		Supply:       p.Supply,
		Impact:       p.Impact.Clone(),
		ActiveEvents: p.ActiveEvents,
		City:         p.City,
		listings:     make([]Listing, 0, len(view)),
	}

	var priceSum [NumSectors]float64
	for _, a := range view {
		l := Listing{ID: a.ID(), Type: a.Type(), Position: a.Common().Position}
		switch v := a.(type) {
		case *Business:
			l.Sector, l.Price = v.Sector, v.Price
			priceSum[v.Sector] += v.Price
			ctx.SectorBusinesses[v.Sector]++
		case *Infrastructure:
			l.Infra, l.Health = v.Kind, v.SystemHealth()
		}
		idx := len(ctx.listings)
		ctx.listings = append(ctx.listings, l)
		ctx.Counts[l.Type]++
		ctx.byType[l.Type] = append(ctx.byType[l.Type], idx)
		switch l.Type {
		case TypeBusiness:
			ctx.bySector[l.Sector] = append(ctx.bySector[l.Sector], idx)
		case TypeInfrastructure:
			ctx.infraKind[l.Infra] = append(ctx.infraKind[l.Infra], idx)
		}
	}
	for s := range ctx.AvgPrice {
		if n := ctx.SectorBusinesses[s]; n > 0 {
			ctx.AvgPrice[s] = priceSum[s] / float64(n)
		}
	}
	return ctx
}

// Population returns the number of citizens.
func (c *Context) Population() int { return c.Counts[TypeCitizen] }

// Listings returns every listing of type t.
func (c *Context) Listings(t Type) []Listing {
	out := make([]Listing, len(c.byType[t]))
	for i, idx := range c.byType[t] {
		out[i] = c.listings[idx]
	}
	return out
}

// Pick returns the i-th listing of type t (modulo the count).
func (c *Context) Pick(t Type, i int) (Listing, bool) {
	ids := c.byType[t]
	if len(ids) == 0 {
		return Listing{}, false
	}
	if i < 0 {
		i = -i
	}
	return c.listings[ids[i%len(ids)]], true
}

// NearestBusiness returns the closest business in sector s to from.
func (c *Context) NearestBusiness(from world.Point, s Sector) (Listing, bool) {
	return c.nearest(from, c.bySector[s], "")
}

// NearestBusinessExcept is NearestBusiness skipping one id.
func (c *Context) NearestBusinessExcept(from world.Point, s Sector, skip AgentID) (Listing, bool) {
	return c.nearest(from, c.bySector[s], skip)
}

// NearestInfrastructure returns the closest unit of kind k to from.
func (c *Context) NearestInfrastructure(from world.Point, k InfraKind) (Listing, bool) {
	return c.nearest(from, c.infraKind[k], "")
}

// Government returns the first government listing.
func (c *Context) Government() (Listing, bool) {
	return c.Pick(TypeGovernment, 0)
}

func (c *Context) nearest(from world.Point, idxs []int, skip AgentID) (Listing, bool) {
	best, bestD := -1, math.Inf(1)
	for _, idx := range idxs {
		l := c.listings[idx]
		if l.ID == skip {
			continue
		}
		if d := from.Distance(l.Position); d < bestD {
			best, bestD = idx, d
		}
	}
	if best < 0 {
		return Listing{}, false
	}
	return c.listings[best], true
}
