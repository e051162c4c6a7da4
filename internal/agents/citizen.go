package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/mini-city/internal/world"
)

// Activity is what a citizen's routine prescribes for the current hour.
type Activity uint8

const (
	ActivitySleeping Activity = iota
	ActivityWorking
	ActivityShopping
	ActivityLeisure
)

var activityNames = [...]string{"sleeping", "working", "shopping", "leisure"}

func (a Activity) String() string {
	if int(a) < len(activityNames) {
		return activityNames[a]
	}
	return fmt.Sprintf("activity(%d)", a)
}

// MarshalText encodes the activity by name.
func (a Activity) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Span is a half-open hour window [Start, End) on a 24h clock. End may wrap
// past midnight.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour falls inside the span.
func (s Span) Contains(hour int) bool {
	if s.Start <= s.End {
		return hour >= s.Start && hour < s.End
	}
	return hour >= s.Start || hour < s.End
}

// Routine is a citizen's daily schedule. Hours outside every span are
// leisure.
type Routine struct {
	Sleep    Span `json:"sleep"`
	Work     Span `json:"work"`
	Shopping Span `json:"shopping"`
}

// At returns the activity for an hour of the day.
func (r Routine) At(hour int) Activity {
	switch {
	case r.Sleep.Contains(hour):
		return ActivitySleeping
	case r.Work.Contains(hour):
		return ActivityWorking
	case r.Shopping.Contains(hour):
		return ActivityShopping
	}
	return ActivityLeisure
}

func randomRoutine(rng *rand.Rand) Routine {
	bed := 22 + rng.Intn(3) // 22..24
	wake := 6 + rng.Intn(3) // 6..8
	work := wake + 1 + rng.Intn(2)
	off := work + 8
	return Routine{
		Sleep:    Span{Start: bed % 24, End: wake},
		Work:     Span{Start: work, End: off},
		Shopping: Span{Start: off, End: off + 2},
	}
}

// Employment threshold: a citizen earning less than this is unemployed.
const EmploymentIncome = 1000.0

// Citizen is a resident with needs, a daily routine, and a budget.
type Citizen struct {
	Base

	Age       int      `json:"age"`
	Income    float64  `json:"income"` // monthly
	Education float64  `json:"education"`
	Needs     Needs    `json:"needs"`
	Stress    float64  `json:"stress"`
	Routine   Routine  `json:"routine"`
	Activity  Activity `json:"activity"`

	Complaints int `json:"complaints"`
	Supports   int `json:"supports"`

	plan Decision // last decision, applied by Update
}

// NewCitizen creates a citizen with randomized demographics, needs, and
// routine. Money starts at half a month's income.
func NewCitizen(id AgentID, name string, pos world.Point, rng *rand.Rand) *Citizen {
	c := &Citizen{
		Base:      newBase(id, TypeCitizen, name, pos, rng),
		Age:       18 + rng.Intn(63),
		Income:    1000 + rng.Float64()*9000,
		Education: rng.Float64(),
		Stress:    rng.Float64() * 0.5,
		Routine:   randomRoutine(rng),
	}
	c.Needs[SectorFood] = uniform(rng, 0.3, 0.8)
	c.Needs[SectorTransport] = uniform(rng, 0.2, 0.7)
	c.Needs[SectorHealthcare] = uniform(rng, 0.1, 0.6)
	c.Needs[SectorEntertainment] = uniform(rng, 0.1, 0.5)
	c.Needs[SectorHousing] = uniform(rng, 0.4, 0.9)
	c.Needs[SectorEnergy] = uniform(rng, 0.3, 0.7)
	c.Resources["money"] = c.Income * 0.5
	return c
}

// NeedLevel returns the citizen's current need for sector s.
func (c *Citizen) NeedLevel(s Sector) float64 { return c.Needs[s] }

// Employed reports whether the citizen's income meets the employment line.
func (c *Citizen) Employed() bool { return c.Income >= EmploymentIncome }

// Decide picks an action from the routine, needs, and personality.
func (c *Citizen) Decide(ctx *Context) Decision {
	c.observe(ctx)
	c.Activity = c.Routine.At(ctx.Hour)

	var d Decision
	switch c.Activity {
	case ActivityWorking:
		d = c.decideWork()
	case ActivityShopping:
		d = c.decideShopping(ctx)
	case ActivityLeisure:
		d = c.decideLeisure()
	default:
		d = c.decideBasic(ctx)
	}

	c.maybeRequestService(ctx, &d)
	c.maybeComplain(ctx, &d)

	c.plan = d
	return d
}

func (c *Citizen) decideWork() Decision {
	productivity := c.Energy*0.6 + (1-c.Stress)*0.4
	if productivity > 0.7 && c.Personality.RiskTolerance > 0.5 {
		return Decision{Action: ActionWorkOvertime, Detail: c.Name + " works overtime"}
	}
	return Decision{Action: ActionWork, Detail: c.Name + " works"}
}

func (c *Citizen) decideShopping(ctx *Context) Decision {
	budget := min(c.Income*0.1, c.Resources["money"])
	if s, ok := c.Needs.MostPressing(NeedUrgent, SectorFood, SectorHealthcare, SectorHousing); ok {
		d := Decision{Action: ActionPurchase, Detail: fmt.Sprintf("%s shops for %s", c.Name, s)}
		c.requestPurchase(ctx, &d, s, budget, PriorityHigh)
		return d
	}
	if c.Personality.SocialOrientation > 0.6 {
		d := Decision{Action: ActionSocialPurchase, Detail: c.Name + " goes out"}
		c.requestPurchase(ctx, &d, SectorEntertainment, c.Income*0.05, PriorityLow)
		return d
	}
	return Decision{Action: ActionIdle, Detail: c.Name + " browses"}
}

func (c *Citizen) decideLeisure() Decision {
	switch {
	case c.Stress > 0.7:
		return Decision{Action: ActionStressRelief, Detail: c.Name + " unwinds"}
	case c.Personality.SocialOrientation > 0.6:
		return Decision{Action: ActionLeisure, Detail: c.Name + " meets friends"}
	}
	return Decision{Action: ActionLeisure, Detail: c.Name + " enjoys a hobby"}
}

func (c *Citizen) decideBasic(ctx *Context) Decision {
	if s, ok := c.Needs.MostPressing(NeedCritical); ok {
		d := Decision{Action: ActionAddressNeed, Detail: fmt.Sprintf("%s urgently needs %s", c.Name, s)}
		c.requestPurchase(ctx, &d, s, c.Resources["money"], PriorityHigh)
		return d
	}
	return Decision{Action: ActionRest, Detail: c.Name + " rests"}
}

func (c *Citizen) requestPurchase(ctx *Context, d *Decision, s Sector, budget float64, pri Priority) {
	if budget <= 0 {
		return
	}
	shop, ok := ctx.NearestBusiness(c.Position, s)
	if !ok {
		return
	}
	d.send(c.message(shop.ID, MsgPurchaseRequest, Payload{Sector: s, Quantity: 1, MaxPrice: budget}, pri))
}

// Infrastructure relieves energy, transport, and healthcare needs.
func (c *Citizen) maybeRequestService(ctx *Context, d *Decision) {
	for _, k := range [...]InfraKind{InfraEnergy, InfraTransport, InfraHealthcare} {
		s, _ := k.ServesSector()
		if c.Needs[s] <= NeedUrgent || c.rng.Float64() >= 0.2 {
			continue
		}
		unit, ok := ctx.NearestInfrastructure(c.Position, k)
		if !ok {
			continue
		}
		d.send(c.message(unit.ID, MsgServiceRequest, Payload{Sector: s, Quantity: 1}, PriorityMedium))
		return
	}
}

func (c *Citizen) maybeComplain(ctx *Context, d *Decision) {
	if c.Stress <= 0.8 || c.rng.Float64() >= 0.05 {
		return
	}
	gov, ok := ctx.Government()
	if !ok {
		return
	}
	topic := "stress"
	if s, ok := c.Needs.MostPressing(NeedUnmet); ok {
		topic = s.String()
	}
	d.send(c.message(gov.ID, MsgComplaint, Payload{Severity: c.Stress, Topic: topic}, PriorityMedium))
}

// Update grows needs, then applies the current activity and event pressure.
func (c *Citizen) Update(dt float64) {
	c.Needs.Grow(0.01*max(0, 1+c.impact[FactorDemand]), dt)
	for _, s := range AllSectors {
		// Disrupted or strained sectors leave their need less served.
		if v := c.impact.SectorActivity(s); v != 0 {
			c.Needs[s] = clamp01(c.Needs[s] + 0.01*abs(v)*dt)
		}
	}

	switch c.Activity {
	case ActivitySleeping:
		c.AdjustEnergy(0.1 * dt)
		c.Stress = clamp01(c.Stress - 0.02*dt)
	case ActivityWorking:
		c.AdjustEnergy(-0.05 * dt)
	default:
		c.AdjustEnergy(-0.02 * dt)
	}

	wage := c.Income / 160 * dt
	switch c.plan.Action {
	case ActionWork:
		c.AddResource("money", wage*(c.Energy*0.6+(1-c.Stress)*0.4))
	case ActionWorkOvertime:
		c.AddResource("money", wage*1.5)
		c.Stress = clamp01(c.Stress + 0.01*dt)
	case ActionStressRelief:
		c.Stress = clamp01(c.Stress - 0.05*dt)
	case ActionLeisure:
		c.AdjustSatisfaction(0.01 * (1 + c.Personality.SocialOrientation) * dt)
	}

	unmet := float64(c.Needs.CountAbove(NeedUnmet))
	c.Stress = clamp01(c.Stress + unmet*0.1*dt)
	c.AdjustSatisfaction(float64(c.Needs.CountBelow(NeedSatisfied))*0.05*dt - unmet*0.01*dt)

	c.AdjustSatisfaction(c.impact[FactorCitizenSatisfaction] * 0.05 * dt)
	c.Stress = clamp01(c.Stress - c.impact[FactorEmployment]*0.02*dt - c.impact[FactorSocialStability]*0.02*dt)
	if e := c.impact[FactorEmployment]; e != 0 {
		c.Income = max(0, c.Income*(1+e*0.01*dt))
	}
}

// HandleMessage reacts to offers, policy, emergencies, and purchase outcomes.
func (c *Citizen) HandleMessage(msg Message) *Message {
	p := msg.Payload
	switch msg.Kind {
	case MsgServiceOffer:
		affordability := c.Income / (p.Price + 1)
		if c.Needs[p.Sector] > 0.6 && affordability > 0.1 {
			offer := p.Price * (1 - c.Personality.RiskTolerance*0.1)
			return c.reply(msg, MsgPurchaseRequest, Payload{Sector: p.Sector, Quantity: 1, MaxPrice: offer})
		}
		return nil

	case MsgPolicyAnnouncement:
		c.AdjustSatisfaction(p.Severity * c.Personality.Conservatism)
		switch {
		case p.Severity < -0.3:
			c.Complaints++
			return c.reply(msg, MsgComplaint, Payload{Severity: -p.Severity, Topic: p.Topic})
		case p.Severity > 0.3:
			c.Supports++
		}
		return nil

	case MsgEmergencyAlert:
		c.Stress = clamp01(c.Stress + p.Severity*0.3)
		return nil

	case MsgMarketEvent:
		if sum := p.Impact.Sum(); sum < 0 {
			c.Stress = clamp01(c.Stress - sum*0.05*(1-c.Personality.RiskTolerance))
		}
		return nil

	case MsgPurchaseAccepted:
		if c.ConsumeResource("money", p.Price*p.Quantity) {
			c.Needs.Relieve(p.Sector, 0.3*p.Quantity)
			c.AdjustSatisfaction(0.02)
		}
		return nil

	case MsgPurchaseDeclined:
		c.AdjustSatisfaction(-0.01)
		return nil

	case MsgAcknowledgment:
		if p.Topic == TopicServiceGranted {
			c.Needs.Relieve(p.Sector, 0.2*p.Quantity)
		}
		return nil
	}
	return c.handleDefault(msg)
}

// TopicServiceGranted marks an infrastructure acknowledgment that served a
// request.
const TopicServiceGranted = "service_granted"

// CitizenState is the serialized form of a citizen.
type CitizenState struct {
	BaseState
	Age        int      `json:"age"`
	Income     float64  `json:"income"`
	Education  float64  `json:"education"`
	Needs      Needs    `json:"needs"`
	Stress     float64  `json:"stress"`
	Activity   Activity `json:"activity"`
	Action     string   `json:"last_action"`
	Employed   bool     `json:"employed"`
	Complaints int      `json:"complaints"`
	Supports   int      `json:"supports"`
}

// State returns a snapshot of the citizen.
func (c *Citizen) State() any {
	return CitizenState{
		BaseState:  c.baseState(),
		Age:        c.Age,
		Income:     c.Income,
		Education:  c.Education,
		Needs:      c.Needs,
		Stress:     c.Stress,
		Activity:   c.Activity,
		Action:     c.plan.Action.String(),
		Employed:   c.Employed(),
		Complaints: c.Complaints,
		Supports:   c.Supports,
	}
}

// ScaleIncome multiplies income and shifts stress; used by scenarios.
func (c *Citizen) ScaleIncome(factor, stressDelta float64) {
	c.Income = max(0, c.Income*factor)
	c.Stress = clamp01(c.Stress + stressDelta)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
