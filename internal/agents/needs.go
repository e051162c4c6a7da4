package agents

import "encoding/json"

// Needs tracks how pressing each sector need is for a citizen.
// Values range from 0.0 (fully satisfied) to 1.0 (urgent); they grow over
// time and fall when a purchase or service is received.
// Fixed-size array indexed by Sector, inline in the citizen struct.
type Needs [NumSectors]float64

// Thresholds on a need level.
const (
	NeedUrgent    = 0.7 // shopping targets needs above this
	NeedUnmet     = 0.8 // each need above this adds stress
	NeedCritical  = 0.9 // overrides the routine
	NeedSatisfied = 0.3 // each need below this adds satisfaction
)

// Grow raises every need by rate·dt, capped at 1.
func (n *Needs) Grow(rate, dt float64) {
	for i := range n {
		n[i] = clamp01(n[i] + rate*dt)
	}
}

// Relieve lowers one need by amount, floored at 0.
func (n *Needs) Relieve(s Sector, amount float64) {
	n[s] = clamp01(n[s] - amount)
}

// CountAbove returns how many needs exceed threshold.
func (n *Needs) CountAbove(threshold float64) int {
	c := 0
	for _, v := range n {
		if v > threshold {
			c++
		}
	}
	return c
}

// CountBelow returns how many needs are under threshold.
func (n *Needs) CountBelow(threshold float64) int {
	c := 0
	for _, v := range n {
		if v < threshold {
			c++
		}
	}
	return c
}

// MostPressing returns the sector with the highest need among those above
// threshold, restricted to the given candidates (all sectors when empty).
func (n *Needs) MostPressing(threshold float64, candidates ...Sector) (Sector, bool) {
	if len(candidates) == 0 {
		candidates = AllSectors[:]
	}
	best, found := Sector(0), false
	for _, s := range candidates {
		if n[s] <= threshold {
			continue
		}
		if !found || n[s] > n[best] {
			best, found = s, true
		}
	}
	return best, found
}

// MarshalJSON encodes needs as a sector-name map.
func (n Needs) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumSectors)
	for _, s := range AllSectors {
		m[s.String()] = n[s]
	}
	return json.Marshal(m)
}
