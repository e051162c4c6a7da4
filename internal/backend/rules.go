package backend

import (
	"math"
	"math/rand"
)

// Per-kind rules shared by both implementations. Energy is on a 0–100 scale.
const (
	startEnergy        = 100.0
	citizenDecay       = 0.1
	businessDecay      = 0.05
	governmentDecay    = 0.02
	businessJitter     = 0.5 // movement span, ±0.25
	businessRevenue    = 1.0
	businessCustomers  = 0.1
	governmentBudget   = 10.0
	governmentApproval = 0.001
	initialBudget      = 10000.0
	initialApproval    = 0.5
)

func decay(kind AgentKind) float64 {
	switch kind {
	case Citizen:
		return citizenDecay
	case Business:
		return businessDecay
	}
	return governmentDecay
}

// velocity draws the per-tick velocity for one agent. Draw order per kind is
// fixed so both implementations consume the stream identically.
func velocity(rng *rand.Rand, kind AgentKind, risk, social float64) (vx, vy float64) {
	switch kind {
	case Citizen:
		vx = (rng.Float64() - 0.5) * 2 * risk
		vy = (rng.Float64() - 0.5) * 2 * social
	case Business:
		vx = (rng.Float64() - 0.5) * businessJitter
		vy = (rng.Float64() - 0.5) * businessJitter
	}
	return vx, vy
}

func clampTo(v, hi float64) float64 {
	return math.Max(0, math.Min(hi, v))
}

// separation returns how far to push each of two agents apart along the unit
// vector from a to b. ok is false when they do not overlap or coincide.
func separation(ax, ay, bx, by, radius float64) (ux, uy, push float64, ok bool) {
	dx, dy := bx-ax, by-ay
	d2 := dx*dx + dy*dy
	reach := 2 * radius
	if d2 >= reach*reach || d2 == 0 {
		return 0, 0, 0, false
	}
	d := math.Sqrt(d2)
	return dx / d, dy / d, (reach - d) / 2, true
}

func within(ax, ay, bx, by, radius float64) bool {
	dx, dy := bx-ax, by-ay
	return dx*dx+dy*dy < radius*radius
}
