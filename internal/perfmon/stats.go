package perfmon

import "slices"

// Percentile returns the p-th percentile of data using the sorted-index
// method: idx = int(p/100·n), clamped to n−1. Returns 0 for empty data.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	idx := int(p / 100 * float64(len(sorted)))
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}

// Slope returns the least-squares slope of data against its index, 0 for
// fewer than two points.
func Slope(data []float64) float64 {
	n := float64(len(data))
	if len(data) < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, y := range data {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	return (n*sxy - sx*sy) / (n*sxx - sx*sx)
}

// Mean returns the arithmetic mean, 0 for empty data.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
