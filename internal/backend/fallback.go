package backend

import (
	"maps"
)

// fallbackHint caps the initial map size.
const fallbackHint = 4096

// fallback keeps one record per agent in a map. Iteration follows insertion
// order so results match the native backend for the same random stream.
type fallback struct {
	p      Params
	nextID ID
	agents map[ID]*Record
	order  []ID
}

func newFallback(p Params) (Backend, error) {
	if err := p.valid(); err != nil {
		return nil, err
	}
	return &fallback{p: p, nextID: 1, agents: make(map[ID]*Record, min(p.Capacity, fallbackHint))}, nil
}

func (f *fallback) Kind() Kind { return KindFallback }
func (f *fallback) Len() int   { return len(f.order) }

func (f *fallback) add(r Record) ID {
	if r.ID == 0 {
		r.ID = f.nextID
	}
	f.nextID = max(f.nextID, r.ID+1)
	r.X = clampTo(r.X, f.p.Width)
	r.Y = clampTo(r.Y, f.p.Height)
	r.Policies = maps.Clone(r.Policies)
	f.agents[r.ID] = &r
	f.order = append(f.order, r.ID)
	return r.ID
}

func (f *fallback) AddCitizen(c CitizenParams) ID {
	return f.add(Record{
		Position:      Position{Kind: Citizen, X: c.X, Y: c.Y, Energy: startEnergy},
		RiskTolerance: c.RiskTolerance, SocialPreference: c.SocialPreference,
	})
}

func (f *fallback) AddBusiness(b BusinessParams) ID {
	return f.add(Record{
		Position:     Position{Kind: Business, X: b.X, Y: b.Y, Energy: startEnergy},
		BusinessType: b.BusinessType,
	})
}

func (f *fallback) AddGovernment(g GovernmentParams) ID {
	return f.add(Record{
		Position: Position{Kind: Government, X: g.X, Y: g.Y, Energy: startEnergy},
		Policies: g.Policies, Budget: initialBudget, Approval: initialApproval,
	})
}

func (f *fallback) each(fn func(*Record)) {
	for _, id := range f.order {
		fn(f.agents[id])
	}
}

func (f *fallback) Tick(dt float64) TickResult {
	w, h := f.p.Width, f.p.Height
	f.each(func(a *Record) {
		a.Energy = max(0, a.Energy-decay(a.Kind)*dt)
		a.VX, a.VY = velocity(f.p.Rand, a.Kind, a.RiskTolerance, a.SocialPreference)
		switch a.Kind {
		case Business:
			a.Revenue += businessRevenue * dt
			a.Customers += businessCustomers * dt
		case Government:
			a.Budget += governmentBudget * dt
			a.Approval = min(1, a.Approval+governmentApproval*dt)
		}
		a.X = clampTo(a.X+a.VX*dt, w)
		a.Y = clampTo(a.Y+a.VY*dt, h)
	})

	if r := f.p.CollisionRadius; r > 0 {
		for i, id := range f.order {
			a := f.agents[id]
			for _, other := range f.order[i+1:] {
				b := f.agents[other]
				ux, uy, push, ok := separation(a.X, a.Y, b.X, b.Y, r)
				if !ok {
					continue
				}
				a.X -= ux * push
				a.Y -= uy * push
				b.X += ux * push
				b.Y += uy * push
			}
		}
		f.each(func(a *Record) {
			a.X = clampTo(a.X, w)
			a.Y = clampTo(a.Y, h)
		})
	}

	interactions := 0
	if r := f.p.InteractionRadius; r > 0 {
		f.each(func(c *Record) {
			if c.Kind != Citizen {
				return
			}
			f.each(func(b *Record) {
				if b.Kind == Business && within(c.X, c.Y, b.X, b.Y, r) {
					interactions++
				}
			})
		})
	}
	return TickResult{AgentsUpdated: len(f.order), InteractionsCalculated: interactions}
}

func (f *fallback) Positions() []Position {
	out := make([]Position, 0, len(f.order))
	f.each(func(a *Record) { out = append(out, a.Position) })
	return out
}

func (f *fallback) Stats() Stats {
	s := Stats{Total: len(f.order), Width: f.p.Width, Height: f.p.Height}
	total := 0.0
	f.each(func(a *Record) {
		s.CountByType[a.Kind]++
		total += a.Energy
	})
	if s.Total > 0 {
		s.AvgEnergy = total / float64(s.Total)
	}
	return s
}

func (f *fallback) Export() []Record {
	out := make([]Record, 0, len(f.order))
	f.each(func(a *Record) {
		r := *a
		r.Policies = maps.Clone(a.Policies)
		out = append(out, r)
	})
	return out
}

func (f *fallback) Import(recs []Record) {
	for _, r := range recs {
		f.add(r)
	}
}
