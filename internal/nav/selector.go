package nav

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/avc/internal/pose"
)

// Mode selects how the controller follows a route. It is fixed at startup.
type Mode int

const (
	// ModeVision steers from the avoidance scan alone and ignores any route.
	ModeVision Mode = iota
	// ModeDeadReckoning picks goals by distance and heading from the pose.
	ModeDeadReckoning
	// ModeOdometry picks goals by replaying route length against the odometer.
	ModeOdometry
)

// ParseMode maps a flag or config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vision", "none":
		return ModeVision, nil
	case "", "deadreckon", "dead-reckoning", "deadreckoning":
		return ModeDeadReckoning, nil
	case "odometry", "odo":
		return ModeOdometry, nil
	default:
		return 0, fmt.Errorf("unknown navigation mode %q: expected vision, deadreckon or odometry", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeVision:
		return "vision"
	case ModeDeadReckoning:
		return "deadreckon"
	case ModeOdometry:
		return "odometry"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// CostScope controls how far the dead reckoning minimum-cost search reaches.
type CostScope int

const (
	// ScopePerWaypoint resets the running minimum for every waypoint, so the
	// last waypoint outside the proximity threshold is chosen.
	ScopePerWaypoint CostScope = iota
	// ScopeScan keeps one running minimum for the whole scan and chooses the
	// cheapest waypoint.
	ScopeScan
)

// ParseCostScope maps a config value to a CostScope.
func ParseCostScope(s string) (CostScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "waypoint", "per-waypoint":
		return ScopePerWaypoint, nil
	case "scan":
		return ScopeScan, nil
	default:
		return 0, fmt.Errorf("unknown min cost scope %q: expected waypoint or scan", s)
	}
}

func (s CostScope) String() string {
	if s == ScopeScan {
		return "scan"
	}
	return "waypoint"
}

// DefaultProximity is the distance inside which a waypoint counts as reached.
const DefaultProximity = 0.5

// Selector chooses the goal waypoint for the current tick.
type Selector struct {
	Mode      Mode
	Scope     CostScope
	Proximity float64
}

// Best returns the goal index at or after cursor, or NoWaypoint when the route
// is complete. odometer is the distance the vehicle has travelled, used only
// by ModeOdometry.
func (s Selector) Best(route *Route, cursor int, p pose.Pose, odometer float64) int {
	if route == nil || cursor == NoWaypoint {
		return NoWaypoint
	}
	switch s.Mode {
	case ModeDeadReckoning:
		return s.deadReckon(route, cursor, p)
	case ModeOdometry:
		return s.replay(route, cursor, odometer)
	default:
		return cursor
	}
}

func (s Selector) deadReckon(route *Route, cursor int, p pose.Pose) int {
	best := cursor
	lowest := math.Inf(1)

	for i := cursor; i != NoWaypoint; i = route.Next(i) {
		if s.Scope == ScopePerWaypoint {
			lowest = math.Inf(1)
		}

		delta := r3.Sub(route.At(i).Position, p.Position)
		dist := r3.Norm(delta)
		co := r3.Dot(unit(delta), p.Heading)
		cost := dist + (2 - (co + 1))

		if dist > s.Proximity {
			if cost < lowest {
				best = i
				lowest = cost
			}
		} else if route.Next(i) == NoWaypoint {
			return NoWaypoint
		}
	}
	return best
}

func (s Selector) replay(route *Route, cursor int, odometer float64) int {
	var sum float64
	for i := cursor; i != NoWaypoint; i = route.Next(i) {
		next := route.Next(i)
		if next == NoWaypoint {
			return NoWaypoint
		}
		sum += r3.Norm(r3.Sub(route.At(i).Position, route.At(next).Position))
		if sum > odometer {
			return i
		}
	}
	return NoWaypoint
}

// unit returns v scaled to length one, or the zero vector for a zero v.
func unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}
