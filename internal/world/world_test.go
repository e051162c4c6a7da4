package world

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBounds_Clamp(t *testing.T) {
	b := NewBounds(100, 50)
	tests := []struct {
		name string
		in   Point
		want Point
	}{
		{"inside", Point{10, 20}, Point{10, 20}},
		{"negative", Point{-5, -1}, Point{0, 0}},
		{"beyond", Point{150, 75}, Point{100, 50}},
		{"nan", Point{math.NaN(), 10}, Point{0, 10}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := b.Clamp(tc.in)
			assert.Equal(t, tc.want, got)
			assert.True(t, b.Contains(got))
		})
	}
	assert.Equal(t, Point{50, 25}, b.Center())
}

func TestPoint_Distance(t *testing.T) {
	assert.InDelta(t, 5.0, Point{0, 0}.Distance(Point{3, 4}), 1e-12)
}

func TestPlacer_SamplesInBounds(t *testing.T) {
	b := NewBounds(100, 100)
	pl := NewPlacer(b, 3, rand.New(rand.NewSource(3)), DefaultPlacerConfig())
	for i := 0; i < 500; i++ {
		p := pl.Sample()
		assert.True(t, b.Contains(p), "sample %d out of bounds: %+v", i, p)
	}
}

func TestPlacer_Deterministic(t *testing.T) {
	b := NewBounds(100, 100)
	a := NewPlacer(b, 9, rand.New(rand.NewSource(9)), DefaultPlacerConfig())
	c := NewPlacer(b, 9, rand.New(rand.NewSource(9)), DefaultPlacerConfig())
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Sample(), c.Sample())
	}
}

func TestPlacer_DensityInUnitRange(t *testing.T) {
	pl := NewPlacer(NewBounds(100, 100), 1, rand.New(rand.NewSource(1)), DefaultPlacerConfig())
	for x := 0.0; x <= 100; x += 10 {
		for y := 0.0; y <= 100; y += 10 {
			d := pl.Density(Point{x, y})
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, 1.0)
		}
	}
}
