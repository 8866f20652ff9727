// Package insights provides the hourly engagement curve used by smart scheduling.
package insights

import (
	"fmt"
)

// Curve holds one engagement score per hour of the day, in page local time
type Curve [24]float64

// DefaultCurve is the simulated audience curve used when a page has no insights
// data: quiet overnight, a lunch bump and an evening peak.
func DefaultCurve() Curve {
	return Curve{
		5, 3, 2, 2, 2, 4, // 00-05
		12, 25, 38, 42, 45, 55, // 06-11
		72, 68, 50, 46, 48, 58, // 12-17
		74, 88, 92, 80, 55, 22, // 18-23
	}
}

// IsZero reports whether every hour has a zero score
func (c Curve) IsZero() bool {
	for _, v := range c {
		if v != 0 {
			return false
		}
	}
	return true
}

// BestHours returns the n highest scoring hours, best first
func (c Curve) BestHours(n int) []int {
	ranked := rank(c)
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

func rank(c Curve) []int {
	hours := make([]int, 0, 24)
	used := [24]bool{}
	for len(hours) < 24 {
		best := -1
		for h := 0; h < 24; h++ {
			if used[h] {
				continue
			}
			if best == -1 || c[h] > c[best] {
				best = h
			}
		}
		used[best] = true
		hours = append(hours, best)
	}
	return hours
}

func (c Curve) toJSON() []float64 {
	out := make([]float64, 24)
	copy(out, c[:])
	return out
}

// curveFromJSON decodes a snapshot's "scores" value, which arrives as
// []float64 before a database round trip and []interface{} after.
func curveFromJSON(v interface{}) (Curve, error) {
	var c Curve
	switch scores := v.(type) {
	case []float64:
		if len(scores) != 24 {
			return c, fmt.Errorf("expected 24 hourly scores, got %d", len(scores))
		}
		copy(c[:], scores)
	case []interface{}:
		if len(scores) != 24 {
			return c, fmt.Errorf("expected 24 hourly scores, got %d", len(scores))
		}
		for i, s := range scores {
			f, ok := s.(float64)
			if !ok {
				return c, fmt.Errorf("hour %d: unexpected score type %T", i, s)
			}
			c[i] = f
		}
	default:
		return c, fmt.Errorf("unexpected scores type %T", v)
	}
	return c, nil
}
