package agents

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/talgya/mini-city/internal/world"
)

// Load history bounds: trimmed to loadHistoryKeep once it exceeds
// loadHistoryCap.
const (
	loadHistoryCap  = 100
	loadHistoryKeep = 50
)

// Thresholds for infrastructure operation.
const (
	OverloadThreshold     = 0.9
	FailureEfficiency     = 0.35
	MaintenanceDueTicks   = 720 // a month of hourly ticks
	serviceLoadPerRequest = 10.0
)

// Infrastructure operates one city system such as the power grid.
type Infrastructure struct {
	Base

	Kind          InfraKind `json:"kind"`
	Capacity      float64   `json:"capacity"`
	Load          float64   `json:"load"`
	Efficiency    float64   `json:"efficiency"`
	Maintenance   float64   `json:"maintenance"`
	OperatingCost float64   `json:"operating_cost"`
	Operational   bool      `json:"operational"`

	Uptime               float64 `json:"uptime"`
	ServiceQuality       float64 `json:"service_quality"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`

	SinceMaintenance int `json:"since_maintenance"`
	Alerts           int `json:"alerts"`
	Served           int `json:"served"`

	LoadHistory []float64 `json:"-"`

	hour        int
	pendingLoad float64
	shed        bool
	maintain    bool
}

// NewInfrastructure creates a unit of kind k.
func NewInfrastructure(id AgentID, name string, k InfraKind, pos world.Point, rng *rand.Rand) *Infrastructure {
	u := &Infrastructure{
		Base:                 newBase(id, TypeInfrastructure, name, pos, rng),
		Kind:                 k,
		Capacity:             uniform(rng, 1000, 10000),
		Efficiency:           uniform(rng, 0.7, 0.95),
		Maintenance:          uniform(rng, 0.5, 0.9),
		OperatingCost:        uniform(rng, 1000, 10000),
		Operational:          true,
		Uptime:               0.99,
		ServiceQuality:       0.8,
		CustomerSatisfaction: 0.7,
		SinceMaintenance:     24 + rng.Intn(MaintenanceDueTicks-24),
	}
	u.Load = u.Capacity * uniform(rng, 0.3, 0.6)
	u.SetSatisfaction(u.CustomerSatisfaction)
	return u
}

// SystemHealth is the mean of efficiency, maintenance, uptime, and service
// quality.
func (u *Infrastructure) SystemHealth() float64 {
	return (u.Efficiency + u.Maintenance + u.Uptime + u.ServiceQuality) / 4
}

// LoadPercentage is load relative to capacity.
func (u *Infrastructure) LoadPercentage() float64 {
	if u.Capacity <= 0 {
		return 0
	}
	return u.Load / u.Capacity
}

func (u *Infrastructure) maintenanceUrgency() float64 {
	return float64(u.SinceMaintenance) / MaintenanceDueTicks
}

// peakFactor is 1 at the morning and evening peaks, 0 at night.
func peakFactor(hour int) float64 {
	switch {
	case hour >= 7 && hour < 10, hour >= 17 && hour < 21:
		return 1
	case hour >= 10 && hour < 17:
		return 0.6
	}
	return 0.1
}

// Decide plans load shedding, maintenance, and emergency reports.
func (u *Infrastructure) Decide(ctx *Context) Decision {
	u.observe(ctx)
	u.hour = ctx.Hour

	pct := u.LoadPercentage()
	overloaded := pct > OverloadThreshold
	u.shed = overloaded
	u.maintain = u.maintenanceUrgency() > 0.7 || u.Efficiency < 0.6 || !u.Operational

	var d Decision
	switch {
	case !u.Operational || pct > 0.95:
		d = Decision{Action: ActionEmergency, Detail: fmt.Sprintf("%s %s system in distress", u.Name, u.Kind)}
		if gov, ok := ctx.Government(); ok {
			severity := clamp01(max(pct-OverloadThreshold, 0)*5 + boolf(!u.Operational)*0.8)
			d.send(u.message(gov.ID, MsgEmergencyReport, Payload{Severity: severity, Topic: u.Kind.String()}, PriorityHigh))
			u.Alerts++
		}
	case overloaded:
		d = Decision{Action: ActionManageLoad, Detail: fmt.Sprintf("%s sheds load at %.0f%%", u.Name, pct*100)}
	case u.maintain:
		d = Decision{Action: ActionMaintain, Detail: u.Name + " schedules maintenance"}
	default:
		d = Decision{Action: ActionIdle, Detail: u.Name + " runs normally"}
	}
	return d
}

// Update drifts load toward demand, degrades or restores efficiency, and
// updates service metrics.
func (u *Infrastructure) Update(dt float64) {
	activity := u.impact[FactorInfrastructure]
	if s, ok := u.Kind.ServesSector(); ok {
		activity += u.impact.SectorActivity(s)
	}
	target := u.Capacity*(0.3+0.4*peakFactor(u.hour))*max(0, 1+activity) + u.pendingLoad
	u.pendingLoad = 0
	u.Load += (target - u.Load) * min(1, 0.2*dt)
	u.Load += (u.rng.Float64() - 0.5) * u.Capacity * 0.02
	if u.shed {
		u.Load *= 0.9
		u.shed = false
	}
	u.Load = clampRange(u.Load, 0, u.Capacity*1.2)

	u.SinceMaintenance++
	u.Efficiency -= min(0.002, float64(u.SinceMaintenance)*0.000005) * dt
	u.Maintenance -= 0.0005 * dt
	if activity < 0 {
		u.Maintenance += activity * 0.01 * dt
	}
	u.Efficiency += u.impact.InfraEfficiency(u.Kind) * 0.005 * dt
	if u.maintain {
		u.Efficiency += 0.05
		u.Maintenance += 0.1
		u.SinceMaintenance = 0
		u.Operational = true
		u.maintain = false
	}
	u.Efficiency = clampRange(u.Efficiency, 0.05, 1)
	u.Maintenance = clamp01(u.Maintenance)

	if u.Efficiency < FailureEfficiency || u.LoadPercentage() > 1.1 {
		u.Operational = false
	}

	if u.Operational {
		u.Uptime = min(1, u.Uptime+0.001*dt)
	} else {
		u.Uptime = max(0, u.Uptime-0.01*dt)
	}
	quality := u.Efficiency * u.Maintenance
	u.ServiceQuality = clamp01(u.ServiceQuality + (quality-u.ServiceQuality)*0.1*dt)
	satTarget := (u.ServiceQuality + u.Uptime) / 2
	u.CustomerSatisfaction = clamp01(u.CustomerSatisfaction + (satTarget-u.CustomerSatisfaction)*0.05*dt)

	u.LoadHistory = append(u.LoadHistory, u.Load)
	if len(u.LoadHistory) > loadHistoryCap {
		u.LoadHistory = slices.Clone(u.LoadHistory[len(u.LoadHistory)-loadHistoryKeep:])
	}

	u.SetEnergy(1 - u.LoadPercentage())
	u.SetSatisfaction(u.CustomerSatisfaction)
}

// HandleMessage serves requests, alerts, and maintenance orders.
func (u *Infrastructure) HandleMessage(msg Message) *Message {
	p := msg.Payload
	switch msg.Kind {
	case MsgServiceRequest:
		qty := max(1, p.Quantity)
		extra := qty * serviceLoadPerRequest
		if !u.Operational || u.Load+u.pendingLoad+extra > u.Capacity {
			return u.reply(msg, MsgAcknowledgment, Payload{Sector: p.Sector, Topic: "service_unavailable"})
		}
		u.pendingLoad += extra
		u.Served++
		return u.reply(msg, MsgAcknowledgment, Payload{Sector: p.Sector, Quantity: qty * u.Efficiency, Topic: TopicServiceGranted})

	case MsgEmergencyAlert:
		u.Efficiency = clampRange(u.Efficiency-p.Severity*0.1, 0.05, 1)
		if p.Severity > 0.8 {
			u.Operational = false
		}
		return nil

	case MsgMaintenanceRequest:
		u.maintain = true
		return u.reply(msg, MsgAcknowledgment, Payload{Topic: "maintenance_scheduled"})
	}
	return u.handleDefault(msg)
}

// Fail takes the unit offline and scales efficiency; used by scenarios.
func (u *Infrastructure) Fail(efficiencyFactor float64) {
	u.Operational = false
	u.Efficiency = clampRange(u.Efficiency*efficiencyFactor, 0.05, 1)
}

// Upgrade scales efficiency and operating cost; used by scenarios.
func (u *Infrastructure) Upgrade(efficiencyFactor, costFactor float64) {
	u.Efficiency = clampRange(u.Efficiency*efficiencyFactor, 0.05, 1)
	u.OperatingCost *= costFactor
}

// InfrastructureState is the serialized form of an infrastructure unit.
type InfrastructureState struct {
	BaseState
	Kind                 InfraKind `json:"kind"`
	Capacity             float64   `json:"capacity"`
	Load                 float64   `json:"load"`
	LoadPercentage       float64   `json:"load_percentage"`
	Efficiency           float64   `json:"efficiency"`
	Maintenance          float64   `json:"maintenance"`
	OperatingCost        float64   `json:"operating_cost"`
	Operational          bool      `json:"operational"`
	Uptime               float64   `json:"uptime"`
	ServiceQuality       float64   `json:"service_quality"`
	CustomerSatisfaction float64   `json:"customer_satisfaction"`
	SystemHealth         float64   `json:"system_health"`
	Alerts               int       `json:"alerts"`
	Served               int       `json:"served"`
}

// State returns a snapshot of the unit.
func (u *Infrastructure) State() any {
	return InfrastructureState{
		BaseState:            u.baseState(),
		Kind:                 u.Kind,
		Capacity:             u.Capacity,
		Load:                 u.Load,
		LoadPercentage:       u.LoadPercentage(),
		Efficiency:           u.Efficiency,
		Maintenance:          u.Maintenance,
		OperatingCost:        u.OperatingCost,
		Operational:          u.Operational,
		Uptime:               u.Uptime,
		ServiceQuality:       u.ServiceQuality,
		CustomerSatisfaction: u.CustomerSatisfaction,
		SystemHealth:         u.SystemHealth(),
		Alerts:               u.Alerts,
		Served:               u.Served,
	}
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
