package nav

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/payload"
	"github.com/banshee-data/avc/internal/pose"
	"github.com/banshee-data/avc/internal/vision"
)

// Avoider scores a frame for obstacles. *vision.Scanner satisfies it.
type Avoider interface {
	Scan(st *payload.State) (vision.Result, error)
}

// leftTurn rotates a heading 90 degrees about +Z.
var leftTurn = r3.Rotation(quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)})

// Config holds the controller settings fixed at startup.
type Config struct {
	Mode        Mode
	Scope       CostScope
	Proximity   float64
	PID         PID
	Calibration Calibration
}

// DefaultConfig returns dead reckoning with the vehicle's throttle gains.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeDeadReckoning,
		Scope:       ScopePerWaypoint,
		Proximity:   DefaultProximity,
		PID:         DefaultThrottlePID(),
		Calibration: DefaultCalibration(),
	}
}

// Decision is everything the controller worked out for one tick.
type Decision struct {
	Action payload.Action
	Scan   vision.Result
	Pose   pose.Pose
	// Goal is the waypoint steered toward, or NoWaypoint.
	Goal int
	// Next is the cursor after Advance.
	Next int
	// Steer is the blended steering fraction before calibration.
	Steer float64
}

// Controller runs one prediction per frame. It owns the route cursor and the
// throttle PID and is not safe for concurrent use; only the shared pose is
// read across goroutines.
type Controller struct {
	cfg      Config
	avoider  Avoider
	route    *Route
	cursor   int
	selector Selector
	pid      PID
	pose     *pose.Shared
}

// NewController checks that a route is present for the route-following modes
// and positions the cursor at its first waypoint.
func NewController(cfg Config, avoider Avoider, route *Route, shared *pose.Shared) (*Controller, error) {
	if avoider == nil {
		return nil, errors.New("controller needs an avoider")
	}
	if shared == nil {
		shared = new(pose.Shared)
	}
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, err
	}

	cursor := NoWaypoint
	if cfg.Mode != ModeVision {
		if route == nil || route.Len() == 0 {
			return nil, fmt.Errorf("%s mode: %w", cfg.Mode, ErrEmptyRoute)
		}
		cursor = 0
	}

	return &Controller{
		cfg:     cfg,
		avoider: avoider,
		route:   route,
		cursor:  cursor,
		selector: Selector{
			Mode:      cfg.Mode,
			Scope:     cfg.Scope,
			Proximity: cfg.Proximity,
		},
		pid:  cfg.PID,
		pose: shared,
	}, nil
}

// Cursor returns the current goal index.
func (c *Controller) Cursor() int { return c.cursor }

// Predict scans st and, in dead reckoning, blends the avoidance steer with
// goal steering toward the cursor waypoint. The other modes steer by the scan
// alone. A zero heading in dead reckoning yields the neutral action without
// touching the throttle PID.
func (c *Controller) Predict(st *payload.State, p pose.Pose) (Decision, error) {
	res, err := c.avoider.Scan(st)
	if err != nil {
		return Decision{}, fmt.Errorf("avoidance scan: %w", err)
	}

	d := Decision{Scan: res, Pose: p, Goal: c.cursor, Next: c.cursor}
	conf := res.Confidence
	steer := res.Steer

	if c.cfg.Mode == ModeDeadReckoning && c.cursor != NoWaypoint {
		if r3.Norm(p.Heading) == 0 {
			d.Action = payload.NeutralAction()
			d.Steer = 0.5
			return d, nil
		}
		goal := GoalSteer(p, c.route.At(c.cursor).Position)
		steer = (1-conf)*goal + conf*res.Steer
	}

	d.Steer = steer
	d.Action = payload.Action{
		Steering: toByte(c.cfg.Calibration.Steering.Lerp(steer)),
		Throttle: c.throttle(1-conf, float64(st.Vel)),
	}
	return d, nil
}

// throttle runs the PID toward target speed and clamps the result to the
// calibrated maximum. The neutral floor is applied last and always holds.
func (c *Controller) throttle(target, vel float64) uint8 {
	t := int(float64(payload.Neutral) + c.pid.Update(target, vel))
	if hi := int(c.cfg.Calibration.Throttle.Max); t > hi {
		t = hi
	}
	if t < int(payload.Neutral) {
		t = int(payload.Neutral)
	}
	return uint8(t)
}

// Advance moves the cursor to the goal for the next tick. In dead reckoning
// it returns ErrRouteExhausted once no waypoint remains and the caller must
// stop producing actions. Odometry replay only tracks progress, so a
// completed route leaves the cursor at NoWaypoint and the loop running.
func (c *Controller) Advance(st *payload.State, p pose.Pose) (int, error) {
	if c.cfg.Mode == ModeVision {
		return c.cursor, nil
	}
	prev := c.cursor
	next := c.selector.Best(c.route, prev, p, float64(st.Distance))
	if next != prev {
		monitoring.Logf("next waypoint: %d -> %d", prev, next)
		c.cursor = next
	}
	if next != NoWaypoint {
		return next, nil
	}
	if c.cfg.Mode == ModeDeadReckoning {
		monitoring.Badf("No waypoints remain")
		return NoWaypoint, ErrRouteExhausted
	}
	if prev != NoWaypoint {
		monitoring.Logf("odometry replay reached the end of the route")
	}
	return NoWaypoint, nil
}

// Tick snapshots the shared pose, predicts an action for st and advances the
// cursor. On ErrRouteExhausted the returned decision must not be acted on.
func (c *Controller) Tick(st *payload.State) (Decision, error) {
	p := c.pose.Snapshot()
	d, err := c.Predict(st, p)
	if err != nil {
		return d, err
	}
	d.Next, err = c.Advance(st, p)
	return d, err
}

// GoalSteer returns the steering fraction toward goal: 0 is hard right, 1 is
// hard left and 0.5 straight ahead. When the goal is behind the vehicle the
// fraction snaps to the nearer extreme.
func GoalSteer(p pose.Pose, goal r3.Vec) float64 {
	dir := unit(r3.Sub(goal, p.Position))
	left := leftTurn.Rotate(p.Heading)

	s := (r3.Dot(left, dir) + 1) / 2
	if r3.Dot(p.Heading, dir) < 0 {
		s = math.Round(s)
	}
	return s
}

func toByte(v float64) uint8 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
