//go:build !purego

package backend

import (
	"fmt"
	"maps"
)

// NativeAvailable reports whether this build includes the native backend.
const NativeAvailable = true

// native stores agents as parallel slices so the per-tick passes walk
// contiguous memory.
type native struct {
	p      Params
	nextID ID

	ids    []ID
	kinds  []AgentKind
	x, y   []float64
	vx, vy []float64
	energy []float64

	risk, social []float64
	btype        []string
	revenue      []float64
	customers    []float64
	policies     []map[string]float64
	budget       []float64
	approval     []float64
}

func newNative(p Params) (Backend, error) {
	if err := p.valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNativeUnavailable, err)
	}
	if p.Capacity > maxNativeCapacity {
		return nil, fmt.Errorf("%w: capacity %d exceeds %d", ErrNativeUnavailable, p.Capacity, maxNativeCapacity)
	}
	n := &native{p: p, nextID: 1}
	n.grow(p.Capacity)
	return n, nil
}

func (n *native) grow(c int) {
	if c <= 0 || len(n.ids) > 0 {
		return
	}
	n.ids = make([]ID, 0, c)
	n.kinds = make([]AgentKind, 0, c)
	n.x, n.y = make([]float64, 0, c), make([]float64, 0, c)
	n.vx, n.vy = make([]float64, 0, c), make([]float64, 0, c)
	n.energy = make([]float64, 0, c)
	n.risk, n.social = make([]float64, 0, c), make([]float64, 0, c)
	n.btype = make([]string, 0, c)
	n.revenue, n.customers = make([]float64, 0, c), make([]float64, 0, c)
	n.policies = make([]map[string]float64, 0, c)
	n.budget, n.approval = make([]float64, 0, c), make([]float64, 0, c)
}

func (n *native) Kind() Kind { return KindNative }
func (n *native) Len() int   { return len(n.ids) }

func (n *native) push(r Record) ID {
	if r.ID == 0 {
		r.ID = n.nextID
	}
	n.nextID = max(n.nextID, r.ID+1)
	n.ids = append(n.ids, r.ID)
	n.kinds = append(n.kinds, r.Kind)
	n.x = append(n.x, clampTo(r.X, n.p.Width))
	n.y = append(n.y, clampTo(r.Y, n.p.Height))
	n.vx = append(n.vx, r.VX)
	n.vy = append(n.vy, r.VY)
	n.energy = append(n.energy, r.Energy)
	n.risk = append(n.risk, r.RiskTolerance)
	n.social = append(n.social, r.SocialPreference)
	n.btype = append(n.btype, r.BusinessType)
	n.revenue = append(n.revenue, r.Revenue)
	n.customers = append(n.customers, r.Customers)
	n.policies = append(n.policies, maps.Clone(r.Policies))
	n.budget = append(n.budget, r.Budget)
	n.approval = append(n.approval, r.Approval)
	return r.ID
}

func (n *native) AddCitizen(c CitizenParams) ID {
	return n.push(Record{
		Position:      Position{Kind: Citizen, X: c.X, Y: c.Y, Energy: startEnergy},
		RiskTolerance: c.RiskTolerance, SocialPreference: c.SocialPreference,
	})
}

func (n *native) AddBusiness(b BusinessParams) ID {
	return n.push(Record{
		Position:     Position{Kind: Business, X: b.X, Y: b.Y, Energy: startEnergy},
		BusinessType: b.BusinessType,
	})
}

func (n *native) AddGovernment(g GovernmentParams) ID {
	return n.push(Record{
		Position: Position{Kind: Government, X: g.X, Y: g.Y, Energy: startEnergy},
		Policies: g.Policies, Budget: initialBudget, Approval: initialApproval,
	})
}

func (n *native) Tick(dt float64) TickResult {
	w, h := n.p.Width, n.p.Height
	for i, k := range n.kinds {
		n.energy[i] = max(0, n.energy[i]-decay(k)*dt)
		n.vx[i], n.vy[i] = velocity(n.p.Rand, k, n.risk[i], n.social[i])
		switch k {
		case Business:
			n.revenue[i] += businessRevenue * dt
			n.customers[i] += businessCustomers * dt
		case Government:
			n.budget[i] += governmentBudget * dt
			n.approval[i] = min(1, n.approval[i]+governmentApproval*dt)
		}
		n.x[i] = clampTo(n.x[i]+n.vx[i]*dt, w)
		n.y[i] = clampTo(n.y[i]+n.vy[i]*dt, h)
	}

	if r := n.p.CollisionRadius; r > 0 {
		for i := range n.x {
			for j := i + 1; j < len(n.x); j++ {
				ux, uy, push, ok := separation(n.x[i], n.y[i], n.x[j], n.y[j], r)
				if !ok {
					continue
				}
				n.x[i] -= ux * push
				n.y[i] -= uy * push
				n.x[j] += ux * push
				n.y[j] += uy * push
			}
		}
		for i := range n.x {
			n.x[i] = clampTo(n.x[i], w)
			n.y[i] = clampTo(n.y[i], h)
		}
	}

	interactions := 0
	if r := n.p.InteractionRadius; r > 0 {
		for i, ki := range n.kinds {
			if ki != Citizen {
				continue
			}
			for j, kj := range n.kinds {
				if kj == Business && within(n.x[i], n.y[i], n.x[j], n.y[j], r) {
					interactions++
				}
			}
		}
	}
	return TickResult{AgentsUpdated: len(n.ids), InteractionsCalculated: interactions}
}

func (n *native) Positions() []Position {
	out := make([]Position, len(n.ids))
	for i := range n.ids {
		out[i] = n.position(i)
	}
	return out
}

func (n *native) position(i int) Position {
	return Position{ID: n.ids[i], Kind: n.kinds[i], X: n.x[i], Y: n.y[i], VX: n.vx[i], VY: n.vy[i], Energy: n.energy[i]}
}

func (n *native) Stats() Stats {
	s := Stats{Total: len(n.ids), Width: n.p.Width, Height: n.p.Height}
	total := 0.0
	for i, k := range n.kinds {
		s.CountByType[k]++
		total += n.energy[i]
	}
	if s.Total > 0 {
		s.AvgEnergy = total / float64(s.Total)
	}
	return s
}

func (n *native) Export() []Record {
	out := make([]Record, len(n.ids))
	for i := range n.ids {
		out[i] = Record{
			Position:         n.position(i),
			RiskTolerance:    n.risk[i],
			SocialPreference: n.social[i],
			BusinessType:     n.btype[i],
			Revenue:          n.revenue[i],
			Customers:        n.customers[i],
			Policies:         maps.Clone(n.policies[i]),
			Budget:           n.budget[i],
			Approval:         n.approval[i],
		}
	}
	return out
}

func (n *native) Import(recs []Record) {
	n.grow(len(recs))
	for _, r := range recs {
		n.push(r)
	}
}
