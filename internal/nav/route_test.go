package nav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestRouteRoundTrip(t *testing.T) {
	want := []Waypoint{
		{Position: r3.Vec{X: 1.5, Y: -2.25, Z: 0}, Heading: r3.Vec{Y: 1}, Velocity: 0.25},
		{Position: r3.Vec{X: 3, Y: 4, Z: 0.5}, Heading: r3.Vec{X: -1}, Velocity: 1},
	}
	route, err := NewRoute(want)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteRoute(&buf, route); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2*WaypointSize {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), 2*WaypointSize)
	}

	got, err := ReadRoute(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got.Waypoints()); diff != "" {
		t.Errorf("route mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteLayout(t *testing.T) {
	route, _ := NewRoute([]Waypoint{{Position: r3.Vec{X: 1, Y: 2, Z: 3}, Heading: r3.Vec{X: 4, Y: 5, Z: 6}, Velocity: 7}})
	var buf bytes.Buffer
	if err := WriteRoute(&buf, route); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	for i := 0; i < 7; i++ {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])); got != float32(i+1) {
			t.Errorf("field %d = %v, want %d", i, got, i+1)
		}
	}
}

func TestReadRoute_Errors(t *testing.T) {
	if _, err := ReadRoute(bytes.NewReader(nil)); !errors.Is(err, ErrEmptyRoute) {
		t.Errorf("empty: got %v, want ErrEmptyRoute", err)
	}
	if _, err := ReadRoute(bytes.NewReader(make([]byte, WaypointSize+3))); !errors.Is(err, ErrShortRead) {
		t.Errorf("partial: got %v, want ErrShortRead", err)
	}
}

func TestLoadRoute(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadRoute(filepath.Join(dir, "missing.route")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: got %v, want os.ErrNotExist", err)
	}

	path := filepath.Join(dir, "loop.route")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteRoute(f, BeaconRoute()); err != nil {
		t.Fatal(err)
	}
	f.Close()

	route, err := LoadRoute(path)
	if err != nil {
		t.Fatal(err)
	}
	if route.Len() != 1 || route.At(0).Position.Y != 1e6 {
		t.Errorf("loaded %+v", route.Waypoints())
	}
}

func TestRouteNext(t *testing.T) {
	route, _ := NewRoute(make([]Waypoint, 3))
	for i, want := range []int{1, 2, NoWaypoint} {
		if got := route.Next(i); got != want {
			t.Errorf("Next(%d) = %d, want %d", i, got, want)
		}
	}
	if got := route.Next(NoWaypoint); got != NoWaypoint {
		t.Errorf("Next(NoWaypoint) = %d", got)
	}
}

func TestBeaconRoute(t *testing.T) {
	want := []Waypoint{{Position: r3.Vec{Y: 1e6}, Heading: r3.Vec{Y: 1}, Velocity: 0.25}}
	if diff := cmp.Diff(want, BeaconRoute().Waypoints()); diff != "" {
		t.Errorf("beacon mismatch (-want +got):\n%s", diff)
	}
}

func TestCalibration(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []float32{40, 200, 117, 180} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	cal, err := ReadCalibration(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := Calibration{Steering: Range{40, 200}, Throttle: Range{117, 180}}
	if cal != want {
		t.Errorf("got %+v, want %+v", cal, want)
	}
	if got := cal.Steering.Lerp(0.5); got != 120 {
		t.Errorf("Lerp(0.5) = %v, want 120", got)
	}

	if _, err := ReadCalibration(bytes.NewReader(make([]byte, 7))); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short blob: got %v", err)
	}

	bad := Calibration{Steering: Range{200, 40}, Throttle: Range{0, 255}}
	if bad.Validate() == nil {
		t.Error("inverted range accepted")
	}
	if DefaultCalibration().Validate() != nil {
		t.Error("default calibration rejected")
	}
}

func TestLoadCalibration_Missing(t *testing.T) {
	_, err := LoadCalibration(filepath.Join(t.TempDir(), "cal.bin"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}
