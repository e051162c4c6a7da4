package economy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/agents"
	"github.com/talgya/mini-city/internal/world"
)

type fakeSeller struct {
	sector agents.Sector
	output float64
	price  float64
}

func (f *fakeSeller) SectorOf() agents.Sector { return f.sector }
func (f *fakeSeller) Output() float64         { return f.output }
func (f *fakeSeller) CurrentPrice() float64   { return f.price }
func (f *fakeSeller) ScalePrice(x float64)    { f.price *= x }

type fakeBuyer agents.Needs

func (f fakeBuyer) NeedLevel(s agents.Sector) float64 { return f[s] }

func buyer(s agents.Sector, v float64) fakeBuyer {
	var n fakeBuyer
	n[s] = v
	return n
}

func TestClear_AdjustsPriceByRatio(t *testing.T) {
	tests := []struct {
		name   string
		supply float64
		demand float64
		want   float64
		dir    Direction
	}{
		{"oversupply lowers", 13, 10, 98, Lower},
		{"undersupply raises", 7, 10, 102, Raise},
		{"balanced holds", 10, 10, 100, Hold},
		{"upper edge holds", 12, 10, 100, Hold},
		{"lower edge holds", 8, 10, 100, Hold},
		{"no demand lowers", 5, 0, 98, Lower},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN one seller and one buyer in the food sector
			s := &fakeSeller{sector: agents.SectorFood, output: tc.supply, price: 100}
			b := buyer(agents.SectorFood, tc.demand)

			// WHEN the market clears
			r := Clear([]Pricer{s}, []Demander{b})

			// THEN the price moves one step in the expected direction
			assert.InDelta(t, tc.want, s.price, 1e-9)
			assert.Equal(t, tc.dir, r.Sectors[agents.SectorFood].Direction)
		})
	}
}

func TestClear_EmptySectorHolds(t *testing.T) {
	r := Clear(nil, nil)
	for _, e := range r.Sectors {
		assert.Equal(t, Hold, e.Direction)
	}
	assert.Zero(t, r.Adjusted)
}

func TestSurvey_LeavesPricesAlone(t *testing.T) {
	s := &fakeSeller{sector: agents.SectorEnergy, output: 50, price: 10}
	r := Survey([]Pricer{s}, []Demander{buyer(agents.SectorEnergy, 1)})
	assert.InDelta(t, 10, s.price, 1e-9)
	e := r.Sectors[agents.SectorEnergy]
	assert.InDelta(t, 50, e.Supply, 1e-9)
	assert.InDelta(t, 50, e.Ratio, 1e-9)
	assert.Equal(t, 1, e.Businesses)
	assert.Equal(t, Lower, e.Direction)
}

func TestClear_BusinessPriceStaysInBand(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	biz := agents.NewBusiness("b", "B", agents.SectorHousing, world.Point{}, rng)
	c := agents.NewCitizen("c", "C", world.Point{}, rng)
	c.Needs[agents.SectorHousing] = 1

	ps, ds := Participants([]*agents.Business{biz}, []*agents.Citizen{c})
	require.Len(t, ps, 1)

	biz.Production = 0
	for i := 0; i < 500; i++ {
		Clear(ps, ds)
	}
	assert.InDelta(t, biz.BasePrice*agents.MaxPriceFactor, biz.Price, 1e-9)

	biz.Production = 1e6
	for i := 0; i < 500; i++ {
		Clear(ps, ds)
	}
	assert.InDelta(t, biz.BasePrice*agents.MinPriceFactor, biz.Price, 1e-9)
}
