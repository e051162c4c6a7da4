package agents

import (
	"cmp"
	"fmt"
	"math/rand"
	"slices"

	"github.com/talgya/mini-city/internal/world"
)

// Regime is the form of government.
type Regime uint8

const (
	RegimeDemocratic Regime = iota
	RegimeAuthoritarian
	RegimeTechnocratic
)

var regimeNames = [...]string{"democratic", "authoritarian", "technocratic"}

func (r Regime) String() string {
	if int(r) < len(regimeNames) {
		return regimeNames[r]
	}
	return fmt.Sprintf("regime(%d)", r)
}

// MarshalText encodes the regime by name.
func (r Regime) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Policies are the levers a government adjusts. All but MinimumWage are
// fractions in [0,1].
type Policies struct {
	TaxRate                  float64 `json:"tax_rate"`
	MinimumWage              float64 `json:"minimum_wage"`
	EnvironmentalRegulations float64 `json:"environmental_regulations"`
	SocialWelfare            float64 `json:"social_welfare"`
	InfrastructureInvestment float64 `json:"infrastructure_investment"`
	PublicServices           float64 `json:"public_services"`
}

// Services are public service levels in [0,1].
type Services struct {
	Healthcare     float64 `json:"healthcare"`
	Education      float64 `json:"education"`
	Transportation float64 `json:"transportation"`
	Security       float64 `json:"security"`
	Utilities      float64 `json:"utilities"`
}

func (s Services) mean() float64 {
	return (s.Healthcare + s.Education + s.Transportation + s.Security + s.Utilities) / 5
}

func (s Services) sum() float64 { return s.mean() * 5 }

func (s *Services) raiseAll(by float64) {
	s.Healthcare = clamp01(s.Healthcare + by)
	s.Education = clamp01(s.Education + by)
	s.Transportation = clamp01(s.Transportation + by)
	s.Security = clamp01(s.Security + by)
	s.Utilities = clamp01(s.Utilities + by)
}

// IssueKind names a city problem a government can detect.
type IssueKind uint8

const (
	IssueDissatisfaction IssueKind = iota
	IssueUnemployment
	IssueInequality
	IssueCrime
	IssueEnvironment
	IssueDeficit
)

var issueNames = [...]string{
	"citizen_dissatisfaction", "high_unemployment", "social_inequality",
	"high_crime", "environmental_degradation", "budget_deficit",
}

func (k IssueKind) String() string {
	if int(k) < len(issueNames) {
		return issueNames[k]
	}
	return fmt.Sprintf("issue(%d)", k)
}

// MarshalText encodes the issue by name.
func (k IssueKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Issue is one detected problem.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	Severity float64   `json:"severity"`
	High     bool      `json:"high_priority"`
}

// Issue thresholds on city indicators.
const (
	IssueSatisfactionBelow  = 0.4
	IssueUnemploymentAbove  = 0.15
	IssueInequalityAbove    = 0.7
	IssueCrimeAbove         = 0.3
	IssueEnvironmentalAbove = 0.7
)

// PolicyInterval is how many cycles pass between policy reviews.
const PolicyInterval = 24

const announceSample = 5

// Government detects city issues, adjusts policy, and answers complaints,
// lobbying, and emergencies.
type Government struct {
	Base

	Regime     Regime  `json:"regime"`
	Efficiency float64 `json:"efficiency"`
	Corruption float64 `json:"corruption"`

	Budget     float64  `json:"budget"`
	TaxRevenue float64  `json:"tax_revenue"` // last tick
	Expenses   float64  `json:"expenses"`    // last tick
	Policies   Policies `json:"policies"`
	Services   Services `json:"services"`

	Approval        float64 `json:"approval"`
	SocialStability float64 `json:"social_stability"`

	Issues           []Issue `json:"issues"`
	PolicyChanges    int     `json:"policy_changes"`
	Complaints       int     `json:"complaints"`
	LobbyAccepted    int     `json:"lobby_accepted"`
	EmergencyReplies int     `json:"emergency_replies"`

	baseEfficiency float64
	initialBudget  float64
	totalIncome    float64
}

// NewGovernment creates a government with randomized policies and services.
func NewGovernment(id AgentID, name string, pos world.Point, rng *rand.Rand) *Government {
	g := &Government{
		Base:       newBase(id, TypeGovernment, name, pos, rng),
		Regime:     Regime(rng.Intn(len(regimeNames))),
		Efficiency: uniform(rng, 0.3, 0.9),
		Corruption: uniform(rng, 0, 0.3),
		Budget:     uniform(rng, 1_000_000, 10_000_000),
		Policies: Policies{
			TaxRate:                  uniform(rng, 0.1, 0.4),
			MinimumWage:              uniform(rng, 1000, 3000),
			EnvironmentalRegulations: uniform(rng, 0.1, 0.9),
			SocialWelfare:            uniform(rng, 0.1, 0.8),
			InfrastructureInvestment: uniform(rng, 0.1, 0.7),
			PublicServices:           uniform(rng, 0.2, 0.9),
		},
		Services: Services{
			Healthcare:     uniform(rng, 0.3, 0.9),
			Education:      uniform(rng, 0.3, 0.9),
			Transportation: uniform(rng, 0.2, 0.8),
			Security:       uniform(rng, 0.4, 0.9),
			Utilities:      uniform(rng, 0.5, 0.9),
		},
		Approval:        0.5,
		SocialStability: 0.5,
	}
	g.baseEfficiency = g.Efficiency
	g.initialBudget = g.Budget
	g.Resources["budget"] = g.Budget
	return g
}

// DetectIssues lists problems in city, highest priority then severity first.
func (g *Government) DetectIssues(city CityIndicators) []Issue {
	var issues []Issue
	if city.CitizenSatisfaction < IssueSatisfactionBelow {
		issues = append(issues, Issue{IssueDissatisfaction, 1 - city.CitizenSatisfaction, true})
	}
	if city.UnemploymentRate > IssueUnemploymentAbove {
		issues = append(issues, Issue{IssueUnemployment, city.UnemploymentRate, true})
	}
	if city.IncomeInequality > IssueInequalityAbove {
		issues = append(issues, Issue{IssueInequality, city.IncomeInequality, false})
	}
	if city.CrimeRate > IssueCrimeAbove {
		issues = append(issues, Issue{IssueCrime, city.CrimeRate, true})
	}
	if city.EnvironmentalImpact > IssueEnvironmentalAbove {
		issues = append(issues, Issue{IssueEnvironment, city.EnvironmentalImpact, false})
	}
	if balance := g.TaxRevenue - g.Expenses; balance < 0 && g.Budget > 0 {
		issues = append(issues, Issue{IssueDeficit, min(1, -balance/max(1, g.Expenses)), true})
	}
	slices.SortStableFunc(issues, func(a, b Issue) int {
		if a.High != b.High {
			if a.High {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Severity, a.Severity)
	})
	return issues
}

// Decide reviews city indicators. Policy changes happen once per review
// interval; in between the government only tracks issues.
func (g *Government) Decide(ctx *Context) Decision {
	g.observe(ctx)
	g.totalIncome = ctx.City.TotalIncome
	g.Issues = g.DetectIssues(ctx.City)

	if ctx.Cycle%PolicyInterval != 0 {
		return Decision{Action: ActionIdle, Detail: g.Name + " monitors the city"}
	}
	if emergency := g.emergencyEvent(ctx); emergency != "" {
		g.Services.Healthcare = clamp01(g.Services.Healthcare + 0.05*g.Efficiency)
		d := Decision{Action: ActionEmergencyResponse, Detail: g.Name + " responds to " + emergency}
		g.announce(ctx, &d, "emergency_response", 0.1)
		return d
	}
	if len(g.Issues) == 0 {
		return Decision{Action: ActionIdle, Detail: g.Name + " finds no pressing issues"}
	}

	d := Decision{Action: ActionPolicyChange}
	for i, issue := range g.Issues[:min(3, len(g.Issues))] {
		if i == 0 {
			d.Detail = fmt.Sprintf("%s addresses %s (%.2f)", g.Name, issue.Kind, issue.Severity)
		}
		g.address(ctx, &d, issue)
		g.PolicyChanges++
	}

	if g.Policies.InfrastructureInvestment > 0.5 && g.Budget > g.initialBudget*0.5 {
		if unit, ok := g.weakestInfrastructure(ctx); ok && unit.Health < 0.6 {
			d.send(g.message(unit.ID, MsgMaintenanceRequest, Payload{Severity: 1 - unit.Health}, PriorityMedium))
			g.Budget -= g.Budget * 0.001
		}
	}
	return d
}

func (g *Government) address(ctx *Context, d *Decision, issue Issue) {
	s := issue.Severity
	switch issue.Kind {
	case IssueDissatisfaction:
		inc := min(0.1, s*0.2)
		g.Services.raiseAll(inc)
		g.Policies.PublicServices = clamp01(g.Policies.PublicServices + inc)
		g.Budget -= g.Budget * inc * 0.01
		g.announce(ctx, d, "improve_public_services", inc*4)
	case IssueUnemployment:
		g.Policies.InfrastructureInvestment = clamp01(g.Policies.InfrastructureInvestment + 0.05)
		g.Budget -= g.Budget * 0.005
		g.announce(ctx, d, "create_public_jobs", s*0.6)
	case IssueInequality:
		rate := min(0.1, s*0.15)
		g.Policies.SocialWelfare = clamp01(g.Policies.SocialWelfare + rate)
		g.Policies.TaxRate = clamp01(g.Policies.TaxRate + rate*0.1)
		g.announce(ctx, d, "increase_social_welfare", rate*0.7)
	case IssueCrime:
		inc := min(0.2, s*0.3)
		g.Services.Security = clamp01(g.Services.Security + inc)
		g.announce(ctx, d, "increase_security", inc*0.9)
	case IssueEnvironment:
		inc := min(0.2, s*0.25)
		g.Policies.EnvironmentalRegulations = clamp01(g.Policies.EnvironmentalRegulations + inc)
		for _, b := range ctx.Listings(TypeBusiness) {
			d.send(g.message(b.ID, MsgRegulationChange, Payload{
				Sector:   b.Sector,
				Severity: g.Policies.EnvironmentalRegulations,
				Topic:    RegulationEnvironmental,
			}, PriorityMedium))
		}
		g.announce(ctx, d, "strengthen_environmental_regulations", -inc*0.5)
	case IssueDeficit:
		g.Policies.TaxRate = clamp01(g.Policies.TaxRate + 0.02)
		g.Policies.PublicServices = clamp01(g.Policies.PublicServices - 0.02)
		g.announce(ctx, d, "austerity", -0.35)
	}
}

// announce sends a policy announcement to a rotating sample of citizens.
func (g *Government) announce(ctx *Context, d *Decision, topic string, impact float64) {
	n := ctx.Population()
	if n == 0 {
		return
	}
	start := g.rng.Intn(n)
	for i, end := 0, min(announceSample, n); i < end; i++ {
		c, _ := ctx.Pick(TypeCitizen, start+i)
		d.send(g.message(c.ID, MsgPolicyAnnouncement, Payload{Severity: impact, Topic: topic}, PriorityMedium))
	}
}

func (g *Government) emergencyEvent(ctx *Context) string {
	for _, e := range ctx.ActiveEvents {
		if e == "natural_disaster" || e == "pandemic" {
			return e
		}
	}
	return ""
}

func (g *Government) weakestInfrastructure(ctx *Context) (Listing, bool) {
	units := ctx.Listings(TypeInfrastructure)
	if len(units) == 0 {
		return Listing{}, false
	}
	return slices.MinFunc(units, func(a, b Listing) int { return cmp.Compare(a.Health, b.Health) }), true
}

// Update accrues tax revenue and expenses and drifts approval, stability,
// and efficiency.
func (g *Government) Update(dt float64) {
	g.TaxRevenue = g.Policies.TaxRate * g.totalIncome * 0.01 * g.Efficiency
	g.Expenses = g.Services.sum()*100 +
		g.Budget*0.0001 +
		g.Policies.SocialWelfare*g.Budget*0.0001
	g.Budget += (g.TaxRevenue - g.Expenses) * dt
	g.Resources["budget"] = g.Budget

	target := g.Services.mean() * (1 - g.Corruption)
	g.Approval = clamp01(g.Approval + (target-g.Approval)*0.1*dt)

	stability := ((1 - g.Corruption) + g.Approval + g.Policies.SocialWelfare) / 3
	g.SocialStability = clamp01(g.SocialStability + (stability-g.SocialStability)*0.05*dt + g.impact[FactorSocialStability]*0.01*dt)

	effTarget := g.baseEfficiency*(1-g.Corruption*0.5) + g.impact[FactorCompliance]*0.1
	g.Efficiency = clampRange(g.Efficiency+(effTarget-g.Efficiency)*0.01*dt, 0.05, 1)

	g.SetSatisfaction(g.Approval)
	if g.initialBudget > 0 {
		g.SetEnergy(g.Budget / g.initialBudget)
	}
}

// HandleMessage answers complaints, lobbying, and emergency reports.
func (g *Government) HandleMessage(msg Message) *Message {
	p := msg.Payload
	switch msg.Kind {
	case MsgComplaint:
		g.Complaints++
		if p.Severity > 0.7 && g.Efficiency > 0.6 {
			g.Policies.PublicServices = clamp01(g.Policies.PublicServices + 0.01)
			return g.reply(msg, MsgAcknowledgment, Payload{Topic: "immediate_investigation"})
		}
		return g.reply(msg, MsgAcknowledgment, Payload{Topic: "standard_processing"})

	case MsgLobbyRequest:
		if p.Influence*(1+g.Corruption) > 0.6 {
			g.LobbyAccepted++
			g.Policies.TaxRate = clamp01(g.Policies.TaxRate - 0.005)
			g.Corruption = clamp01(g.Corruption + 0.001)
			return g.reply(msg, MsgAcknowledgment, Payload{Topic: "consider_request"})
		}
		return g.reply(msg, MsgAcknowledgment, Payload{Topic: "decline_request"})

	case MsgEmergencyReport:
		g.EmergencyReplies++
		g.Budget -= p.Severity * g.Budget * 0.01
		return g.reply(msg, MsgMaintenanceRequest, Payload{Severity: p.Severity, Topic: "emergency_repair"})
	}
	return g.handleDefault(msg)
}

// RaiseTax increases the tax rate by delta, capped at max.
func (g *Government) RaiseTax(delta, ceiling float64) {
	g.Policies.TaxRate = min(ceiling, g.Policies.TaxRate+delta)
}

// TightenEnvironment increases environmental regulations by delta.
func (g *Government) TightenEnvironment(delta float64) {
	g.Policies.EnvironmentalRegulations = clamp01(g.Policies.EnvironmentalRegulations + delta)
}

// GovernmentState is the serialized form of a government.
type GovernmentState struct {
	BaseState
	Regime          Regime   `json:"regime"`
	Efficiency      float64  `json:"efficiency"`
	Corruption      float64  `json:"corruption"`
	Budget          float64  `json:"budget"`
	TaxRevenue      float64  `json:"tax_revenue"`
	Expenses        float64  `json:"expenses"`
	Policies        Policies `json:"policies"`
	Services        Services `json:"services"`
	Approval        float64  `json:"approval"`
	SocialStability float64  `json:"social_stability"`
	Issues          []Issue  `json:"issues"`
	PolicyChanges   int      `json:"policy_changes"`
	Complaints      int      `json:"complaints"`
}

// State returns a snapshot of the government.
func (g *Government) State() any {
	return GovernmentState{
		BaseState:       g.baseState(),
		Regime:          g.Regime,
		Efficiency:      g.Efficiency,
		Corruption:      g.Corruption,
		Budget:          g.Budget,
		TaxRevenue:      g.TaxRevenue,
		Expenses:        g.Expenses,
		Policies:        g.Policies,
		Services:        g.Services,
		Approval:        g.Approval,
		SocialStability: g.SocialStability,
		Issues:          slices.Clone(g.Issues),
		PolicyChanges:   g.PolicyChanges,
		Complaints:      g.Complaints,
	}
}
