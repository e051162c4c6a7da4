package world

import (
	"fmt"
	"math"
)

// Point is a position in continuous city space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(o Point) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// Bounds is the rectangular city extent [0,Width]×[0,Height].
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewBounds creates city bounds.
func NewBounds(width, height float64) Bounds {
	return Bounds{Width: width, Height: height}
}

// Contains reports whether p lies inside the bounds (edges inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.X >= 0 && p.X <= b.Width && p.Y >= 0 && p.Y <= b.Height
}

// Clamp returns p moved onto the nearest in-bounds position.
func (b Bounds) Clamp(p Point) Point {
	return Point{X: clamp(p.X, 0, b.Width), Y: clamp(p.Y, 0, b.Height)}
}

// Center returns the middle of the city.
func (b Bounds) Center() Point {
	return Point{X: b.Width / 2, Y: b.Height / 2}
}

// String returns a summary of the bounds.
func (b Bounds) String() string {
	return fmt.Sprintf("Bounds(%gx%g)", b.Width, b.Height)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
