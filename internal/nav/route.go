// Package nav turns avoidance results, a recorded route and the vehicle pose
// into drive commands.
package nav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
)

// NoWaypoint is the cursor value past the end of a route.
const NoWaypoint = -1

// WaypointSize is the on-disk size of a waypoint: position, heading and
// velocity as seven little-endian float32.
const WaypointSize = 7 * 4

var (
	ErrEmptyRoute     = errors.New("route has no waypoints")
	ErrShortRead      = errors.New("route file ends mid waypoint")
	ErrRouteExhausted = errors.New("no waypoints remain")
)

// Waypoint is one recorded point of a route.
type Waypoint struct {
	Position r3.Vec
	Heading  r3.Vec
	Velocity float64
}

// Route is an ordered, immutable sequence of waypoints. Waypoint i is followed
// by i+1; the last waypoint is followed by NoWaypoint.
type Route struct {
	waypoints []Waypoint
}

// NewRoute copies wps into a Route.
func NewRoute(wps []Waypoint) (*Route, error) {
	if len(wps) == 0 {
		return nil, ErrEmptyRoute
	}
	return &Route{waypoints: append([]Waypoint(nil), wps...)}, nil
}

// BeaconRoute returns a single waypoint far ahead on +Y, for driving straight
// out without a recorded route.
func BeaconRoute() *Route {
	return &Route{waypoints: []Waypoint{{
		Position: r3.Vec{Y: 1e6},
		Heading:  r3.Vec{Y: 1},
		Velocity: 0.25,
	}}}
}

// Len returns the number of waypoints.
func (r *Route) Len() int { return len(r.waypoints) }

// At returns waypoint i.
func (r *Route) At(i int) Waypoint { return r.waypoints[i] }

// Next returns the index after i, or NoWaypoint at the end of the route.
func (r *Route) Next(i int) int {
	if i < 0 || i+1 >= len(r.waypoints) {
		return NoWaypoint
	}
	return i + 1
}

// Waypoints returns a copy of the route.
func (r *Route) Waypoints() []Waypoint {
	return append([]Waypoint(nil), r.waypoints...)
}

// ReadRoute decodes waypoint records until r is exhausted.
func ReadRoute(r io.Reader) (*Route, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading route: %w", err)
	}
	if len(data)%WaypointSize != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrShortRead, len(data)%WaypointSize)
	}

	wps := make([]Waypoint, len(data)/WaypointSize)
	for i := range wps {
		wps[i] = decodeWaypoint(data[i*WaypointSize:])
	}
	return NewRoute(wps)
}

// LoadRoute reads a route file.
func LoadRoute(path string) (*Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open route: %w", err)
	}
	defer f.Close()

	route, err := ReadRoute(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return route, nil
}

// WriteRoute encodes every waypoint of route to w.
func WriteRoute(w io.Writer, route *Route) error {
	buf := make([]byte, WaypointSize*route.Len())
	for i, wp := range route.waypoints {
		encodeWaypoint(buf[i*WaypointSize:], wp)
	}
	_, err := w.Write(buf)
	return err
}

func decodeWaypoint(b []byte) Waypoint {
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return Waypoint{
		Position: r3.Vec{X: f(0), Y: f(1), Z: f(2)},
		Heading:  r3.Vec{X: f(3), Y: f(4), Z: f(5)},
		Velocity: f(6),
	}
}

func encodeWaypoint(b []byte, wp Waypoint) {
	for i, v := range []float64{
		wp.Position.X, wp.Position.Y, wp.Position.Z,
		wp.Heading.X, wp.Heading.Y, wp.Heading.Z,
		wp.Velocity,
	} {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
	}
}
