package significance

import (
	"math"
	"sort"
)

// BenjaminiHochberg returns q-values for p in the same order. Each q is the
// step-up adjusted p(i)*n/i with a running minimum from the largest rank
// down, clipped to 1, so q >= p and q is monotone in p. NaN counts as 1.
func BenjaminiHochberg(p []float64) []float64 {
	n := len(p)
	q := make([]float64, n)
	if n == 0 {
		return q
	}

	clean := make([]float64, n)
	for i, v := range p {
		if math.IsNaN(v) || v > 1 {
			v = 1
		}
		if v < 0 {
			v = 0
		}
		clean[i] = v
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return clean[order[a]] < clean[order[b]]
	})

	running := 1.0
	for rank := n; rank >= 1; rank-- {
		idx := order[rank-1]
		adjusted := clean[idx] * float64(n) / float64(rank)
		if adjusted < running {
			running = adjusted
		}
		q[idx] = math.Max(clean[idx], math.Min(1, running))
	}
	return q
}
