package vision

import (
	"fmt"
	"strings"
)

// Region is the half-open bucket range [Start, End) chosen by BestRegion.
type Region struct {
	Start, End int
	Score      float64
}

// Width returns the number of buckets in the region.
func (r Region) Width() int { return r.End - r.Start }

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d) %.3f", r.Start, r.End, r.Score)
}

// BestRegion returns the contiguous range [i, j) of hist that maximises
//
//	sum(hist[i:j]) / (1 + (j-i)*widthWeight)
//
// Candidates are visited with j descending from len(hist) and, for each j,
// i descending from j-1. The best starts as the last bucket alone scored at
// its raw value, and is only replaced by a strictly greater score, so ties go
// to the candidate seen first in that order. hist must not be empty.
func BestRegion(hist []float64, widthWeight float64) Region {
	n := len(hist)
	best := Region{Start: n - 1, End: n, Score: hist[n-1]}

	for j := n; j >= 0; j-- {
		var sum float64
		for i := j - 1; i >= 0; i-- {
			sum += hist[i]
			score := sum / (1 + float64(j-i)*widthWeight)
			if score > best.Score {
				best = Region{Start: i, End: j, Score: score}
			}
		}
	}
	return best
}

// TargetPolicy picks the bucket to steer toward inside a region.
type TargetPolicy int

const (
	// PolicyEdge steers to the region's low edge when the region touches
	// exactly one frame edge, and to its midpoint otherwise.
	PolicyEdge TargetPolicy = iota
	// PolicyQuarter steers three quarters in when the region touches only the
	// high edge, one quarter in when it touches only the low edge, and to the
	// midpoint otherwise.
	PolicyQuarter
)

// ParseTargetPolicy maps a configuration name to a TargetPolicy.
func ParseTargetPolicy(s string) (TargetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "edge":
		return PolicyEdge, nil
	case "quarter":
		return PolicyQuarter, nil
	default:
		return 0, fmt.Errorf("unknown target policy %q: expected edge or quarter", s)
	}
}

func (p TargetPolicy) String() string {
	switch p {
	case PolicyEdge:
		return "edge"
	case PolicyQuarter:
		return "quarter"
	default:
		return fmt.Sprintf("TargetPolicy(%d)", int(p))
	}
}

// Target returns the bucket index to steer toward for region r out of n
// buckets.
func (p TargetPolicy) Target(r Region, n int) int {
	w := r.Width()
	switch {
	case r.Start > 0 && r.End == n:
		if p == PolicyQuarter {
			return r.Start + int(float64(w)*0.75)
		}
		return r.Start
	case r.Start == 0 && r.End < n:
		if p == PolicyQuarter {
			return r.Start + int(float64(w)*0.25)
		}
		return r.Start
	default:
		return r.Start + w/2
	}
}
