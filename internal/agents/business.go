package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/mini-city/internal/world"
)

// PricingStrategy selects how a business sets its price.
type PricingStrategy uint8

const (
	PricingCostPlus PricingStrategy = iota
	PricingMarketBased
	PricingDynamic
)

var pricingNames = [...]string{"cost_plus", "market_based", "dynamic"}

func (p PricingStrategy) String() string {
	if int(p) < len(pricingNames) {
		return pricingNames[p]
	}
	return fmt.Sprintf("pricing(%d)", p)
}

// MarshalText encodes the strategy by name.
func (p PricingStrategy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Strategy holds a business's long-lived preferences.
type Strategy struct {
	Pricing     PricingStrategy `json:"pricing"`
	Expansion   float64         `json:"expansion"`
	Innovation  float64         `json:"innovation"`
	Cooperation float64         `json:"cooperation"`
}

// Price bounds relative to the base price.
const (
	MinPriceFactor = 0.5
	MaxPriceFactor = 2.0
)

const demandHistoryLen = 20

// Business produces goods for one sector and sells them to citizens.
type Business struct {
	Base

	Sector    Sector   `json:"sector"`
	Strategy  Strategy `json:"strategy"`
	Employees int      `json:"employees"`
	Capital   float64  `json:"capital"`

	BasePrice  float64 `json:"base_price"`
	Price      float64 `json:"price"` // always within [0.5, 2]×BasePrice
	Capacity   float64 `json:"capacity"`
	Production float64 `json:"production"`
	Inventory  float64 `json:"inventory"`

	// Efficiency scales output; CostFactor scales operating costs.
	Efficiency float64 `json:"efficiency"`
	CostFactor float64 `json:"cost_factor"`

	Revenue              float64 `json:"revenue"` // lifetime
	ProfitMargin         float64 `json:"profit_margin"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`
	MarketShare          float64 `json:"market_share"`
	EnvironmentalImpact  float64 `json:"environmental_impact"`
	Regulation           float64 `json:"regulation"`
	Partnerships         int     `json:"partnerships"`

	demandHistory []float64

	targetPrice      float64
	targetProduction float64
	expand           bool
}

// NewBusiness creates a business in sector s with randomized finances and
// strategy.
func NewBusiness(id AgentID, name string, s Sector, pos world.Point, rng *rand.Rand) *Business {
	base := uniform(rng, 10, 1000)
	b := &Business{
		Base:   newBase(id, TypeBusiness, name, pos, rng),
		Sector: s,
		Strategy: Strategy{
			Pricing:     PricingStrategy(rng.Intn(len(pricingNames))),
			Expansion:   rng.Float64(),
			Innovation:  rng.Float64(),
			Cooperation: rng.Float64(),
		},
		Employees:            5 + rng.Intn(496),
		Capital:              uniform(rng, 10_000, 1_000_000),
		BasePrice:            base,
		Price:                base,
		Capacity:             uniform(rng, 10, 100),
		Efficiency:           1,
		CostFactor:           1,
		ProfitMargin:         uniform(rng, 0.1, 0.4),
		CustomerSatisfaction: 0.5,
		MarketShare:          uniform(rng, 0.01, 0.3),
		EnvironmentalImpact:  uniform(rng, 0.1, 0.5),
	}
	b.Resources["capital"] = b.Capital
	b.targetPrice = base
	return b
}

// SetPrice stores p clamped to the allowed band around the base price.
func (b *Business) SetPrice(p float64) {
	b.Price = clampRange(p, b.BasePrice*MinPriceFactor, b.BasePrice*MaxPriceFactor)
}

// ScalePrice multiplies the price by f, respecting the band.
func (b *Business) ScalePrice(f float64) { b.SetPrice(b.Price * f) }

// SectorOf returns the business sector.
func (b *Business) SectorOf() Sector { return b.Sector }

// Output is the effective units produced per unit of dt.
func (b *Business) Output() float64 { return b.Production * b.Efficiency }

// CurrentPrice returns the current unit price.
func (b *Business) CurrentPrice() float64 { return b.Price }

func (b *Business) utilization() float64 {
	if b.Capacity <= 0 {
		return 0
	}
	return b.Production / b.Capacity
}

func (b *Business) demandTrend() float64 {
	n := len(b.demandHistory)
	if n < 3 {
		return 0
	}
	// Least-squares slope over the last three points.
	h := b.demandHistory[n-3:]
	return (h[2] - h[0]) / 2
}

func (b *Business) financialHealth() float64 {
	capital := min(1, max(0, b.Capital/100_000))
	revenue := min(1, b.Revenue/1_000_000)
	return (capital + revenue + clamp01(b.ProfitMargin)) / 3
}

func (b *Business) productionCost() float64 {
	cost := b.BasePrice * 0.6
	switch u := b.utilization(); {
	case u > 0.8:
		cost *= 0.9
	case u < 0.3:
		cost *= 1.1
	}
	return cost * b.CostFactor * (1 + b.impact.CostPressure(b.Sector))
}

// Decide sets price and production targets from sector demand, strategy,
// and event pressure, and may message government, peers, or citizens.
func (b *Business) Decide(ctx *Context) Decision {
	b.observe(ctx)

	peers := max(1, ctx.SectorBusinesses[b.Sector])
	share := ctx.Demand[b.Sector] / float64(peers)
	b.demandHistory = append(b.demandHistory, share)
	if len(b.demandHistory) > demandHistoryLen {
		b.demandHistory = b.demandHistory[len(b.demandHistory)-demandHistoryLen:]
	}

	demandFactor := 0.0
	if b.Capacity > 0 {
		demandFactor = share / b.Capacity
	}
	pressure := 0.0
	if avg := ctx.AvgPrice[b.Sector]; avg > 0 {
		pressure = abs(b.Price-avg) / avg
	}

	price := b.Price
	switch b.Strategy.Pricing {
	case PricingDynamic:
		mult := 1.0
		if demandFactor > 0.7 && b.utilization() > 0.8 {
			mult += 0.02
		}
		if pressure > 0.3 {
			mult -= 0.01
		}
		price *= mult
	case PricingMarketBased:
		switch {
		case demandFactor > 0.8:
			price *= 1.01
		case demandFactor < 0.3:
			price *= 0.99
		}
	default:
		target := b.productionCost() * (1 + clamp01(b.ProfitMargin) + 0.1)
		price += (target - price) * 0.1
	}
	price *= 1 + 0.05*b.impact.PricePressure(b.Sector)
	b.targetPrice = price

	target := min(share, b.Capacity)
	switch {
	case b.Strategy.Expansion > 0.7:
		target = min(target*1.2, b.Capacity)
	case b.Strategy.Expansion < 0.3:
		target *= 0.8
	}
	activity := b.impact[FactorProduction] + b.impact.SectorActivity(b.Sector)
	b.targetProduction = max(0, target*(1+activity))

	b.expand = b.utilization() > 0.9 && b.financialHealth() > 0.6

	d := Decision{Action: ActionAdjustPrice, Detail: fmt.Sprintf("%s prices %s at %.2f", b.Name, b.Sector, price)}
	if b.expand {
		d = Decision{Action: ActionExpand, Detail: b.Name + " expands capacity"}
	}

	if b.ProfitMargin < 0.1 && b.rng.Float64() < 0.05 {
		if gov, ok := ctx.Government(); ok {
			influence := b.MarketShare + min(1, max(0, b.Capital/1_000_000))
			d.send(b.message(gov.ID, MsgLobbyRequest, Payload{Sector: b.Sector, Influence: influence, Topic: "tax_relief"}, PriorityLow))
		}
	}
	if b.Strategy.Cooperation > 0.7 && b.rng.Float64() < 0.02 {
		if peer, ok := ctx.NearestBusinessExcept(b.Position, b.Sector, b.ID()); ok {
			d.send(b.message(peer.ID, MsgPartnershipProposal, Payload{Sector: b.Sector}, PriorityLow))
		}
	}
	if b.Inventory > b.Output()*2 && b.Output() > 0 && b.rng.Float64() < 0.1 {
		if c, ok := ctx.Pick(TypeCitizen, b.rng.Intn(max(1, ctx.Population()))); ok {
			d.send(b.message(c.ID, MsgServiceOffer, Payload{Sector: b.Sector, Price: b.Price}, PriorityLow))
		}
	}
	return d
}

// Update produces into inventory, books background sales and costs, and
// drifts satisfaction, margin, and share.
func (b *Business) Update(dt float64) {
	b.SetPrice(b.targetPrice)
	b.Production += (b.targetProduction - b.Production) * min(1, 0.5*dt)
	if b.expand {
		spend := b.Capital * 0.05
		b.Capital -= spend
		b.Capacity *= 1.05
		b.expand = false
	}

	made := b.Output() * dt
	b.Inventory += made
	sold := min(b.Inventory, made*(0.5+0.5*b.CustomerSatisfaction))
	b.Inventory -= sold
	revenue := sold * b.Price

	costs := (float64(b.Employees)*1.0 + b.Production*b.productionCost()) * dt
	b.Revenue += revenue
	b.Capital += revenue - costs
	b.Resources["capital"] = b.Capital

	if revenue > 0 {
		realized := clampRange((revenue-costs)/revenue, -1, 1)
		b.ProfitMargin += (realized - b.ProfitMargin) * min(1, 0.05*dt)
	}
	b.ProfitMargin = clampRange(b.ProfitMargin+b.impact[FactorEconomicHealth]*0.01*dt, -1, 1)

	priceFactor := 1 - (b.Price-b.BasePrice)/b.BasePrice
	quality := min(1, b.utilization())
	targetSat := (priceFactor + quality) / 2
	b.CustomerSatisfaction = clamp01(b.CustomerSatisfaction + (targetSat-b.CustomerSatisfaction)*0.1*dt)

	switch perf := (b.CustomerSatisfaction + b.ProfitMargin) / 2; {
	case perf > 0.7:
		b.MarketShare = clamp01(b.MarketShare + 0.01*dt)
	case perf < 0.3:
		b.MarketShare = clamp01(b.MarketShare - 0.01*dt)
	}

	envTarget := clamp01(0.2 + 0.5*b.utilization() - 0.3*b.Regulation - 0.1*b.Strategy.Innovation)
	b.EnvironmentalImpact = clamp01(b.EnvironmentalImpact + (envTarget-b.EnvironmentalImpact)*0.05*dt)

	b.AdjustEnergy((1 - 0.5*b.utilization() - b.Energy) * 0.1 * dt)
	b.SetSatisfaction((b.CustomerSatisfaction + clamp01(b.ProfitMargin)) / 2)
}

// HandleMessage serves purchases, partnerships, and regulation.
func (b *Business) HandleMessage(msg Message) *Message {
	p := msg.Payload
	switch msg.Kind {
	case MsgPurchaseRequest:
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
		}
		maxPrice := p.MaxPrice
		if maxPrice <= 0 {
			maxPrice = b.Price
		}
		switch {
		case b.Inventory >= qty && maxPrice >= b.Price:
			b.Inventory -= qty
			b.Revenue += qty * b.Price
			b.Capital += qty * b.Price
			return b.reply(msg, MsgPurchaseAccepted, Payload{Sector: b.Sector, Quantity: qty, Price: b.Price})
		case b.Inventory < qty:
			return b.reply(msg, MsgPurchaseDeclined, Payload{Sector: b.Sector, Quantity: b.Inventory, Price: b.Price, Topic: "partial_fulfillment"})
		default:
			return b.reply(msg, MsgPurchaseDeclined, Payload{Sector: b.Sector, Price: b.Price, Topic: "price_too_low"})
		}

	case MsgPartnershipProposal:
		if b.Strategy.Cooperation > 0.6 {
			b.Partnerships++
			return b.reply(msg, MsgAcknowledgment, Payload{Sector: b.Sector, Topic: "accept_partnership"})
		}
		return b.reply(msg, MsgAcknowledgment, Payload{Sector: b.Sector, Topic: "decline_partnership"})

	case MsgRegulationChange:
		switch p.Topic {
		case RegulationPriceCap:
			if p.Price > 0 && b.Price > p.Price {
				b.SetPrice(p.Price)
				b.targetPrice = b.Price
			}
		case RegulationProductionQuota:
			if p.Quantity > 0 {
				b.Capacity = min(b.Capacity, p.Quantity)
			}
		case RegulationEnvironmental:
			b.Regulation = clamp01(p.Severity)
			b.CostFactor *= 1 + 0.05*b.Regulation
		}
		return b.reply(msg, MsgAcknowledgment, Payload{Sector: b.Sector, Topic: "regulation_compliance"})
	}
	return b.handleDefault(msg)
}

// Regulation topics carried in regulation_change messages.
const (
	RegulationPriceCap        = "price_cap"
	RegulationProductionQuota = "production_quota"
	RegulationEnvironmental   = "environmental"
)

// Burden raises operating costs and lowers efficiency; used by scenarios.
func (b *Business) Burden(costFactor, efficiencyFactor float64) {
	b.CostFactor *= costFactor
	b.Efficiency = clampRange(b.Efficiency*efficiencyFactor, 0, 2)
}

// BusinessState is the serialized form of a business.
type BusinessState struct {
	BaseState
	Sector               Sector   `json:"sector"`
	Strategy             Strategy `json:"strategy"`
	Employees            int      `json:"employees"`
	Capital              float64  `json:"capital"`
	BasePrice            float64  `json:"base_price"`
	Price                float64  `json:"price"`
	Capacity             float64  `json:"capacity"`
	Production           float64  `json:"production"`
	Inventory            float64  `json:"inventory"`
	Utilization          float64  `json:"capacity_utilization"`
	Revenue              float64  `json:"revenue"`
	ProfitMargin         float64  `json:"profit_margin"`
	CustomerSatisfaction float64  `json:"customer_satisfaction"`
	MarketShare          float64  `json:"market_share"`
	EnvironmentalImpact  float64  `json:"environmental_impact"`
	Partnerships         int      `json:"partnerships"`
}

// State returns a snapshot of the business.
func (b *Business) State() any {
	return BusinessState{
		BaseState:            b.baseState(),
		Sector:               b.Sector,
		Strategy:             b.Strategy,
		Employees:            b.Employees,
		Capital:              b.Capital,
		BasePrice:            b.BasePrice,
		Price:                b.Price,
		Capacity:             b.Capacity,
		Production:           b.Production,
		Inventory:            b.Inventory,
		Utilization:          b.utilization(),
		Revenue:              b.Revenue,
		ProfitMargin:         b.ProfitMargin,
		CustomerSatisfaction: b.CustomerSatisfaction,
		MarketShare:          b.MarketShare,
		EnvironmentalImpact:  b.EnvironmentalImpact,
		Partnerships:         b.Partnerships,
	}
}
