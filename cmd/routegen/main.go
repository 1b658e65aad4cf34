// Command routegen converts a CSV of waypoints into a binary route file.
//
// Each CSV row is x,y,z,hx,hy,hz,velocity. Lines starting with # are
// comments, and a header row whose first field is not a number is skipped.
// With -beacon it writes the single far waypoint route instead.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/version"
)

var (
	inPath      = flag.String("in", "-", "waypoint CSV (- for stdin)")
	outPath     = flag.String("out", "", "route file to write (required)")
	beacon      = flag.Bool("beacon", false, "write the beacon route and ignore -in")
	showVersion = flag.Bool("version", false, "print version and exit")
)

const fieldsPerRow = 7

// parseWaypoints reads waypoint rows from r.
func parseWaypoints(r io.Reader) ([]nav.Waypoint, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = fieldsPerRow
	cr.TrimLeadingSpace = true

	var wps []nav.Waypoint
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var v [fieldsPerRow]float64
		for i, field := range rec {
			v[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				break
			}
		}
		if err != nil {
			if line == 1 && len(wps) == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		wps = append(wps, nav.Waypoint{
			Position: r3.Vec{X: v[0], Y: v[1], Z: v[2]},
			Heading:  r3.Vec{X: v[3], Y: v[4], Z: v[5]},
			Velocity: v[6],
		})
	}
	return wps, nil
}

func generate(in io.Reader, out string, useBeacon bool) (int, error) {
	var route *nav.Route
	if useBeacon {
		route = nav.BeaconRoute()
	} else {
		wps, err := parseWaypoints(in)
		if err != nil {
			return 0, err
		}
		if route, err = nav.NewRoute(wps); err != nil {
			return 0, err
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	if err := nav.WriteRoute(f, route); err != nil {
		f.Close()
		return 0, err
	}
	return route.Len(), f.Close()
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("routegen"))
		return
	}
	monitoring.SetProcessName("routegen")

	if *outPath == "" {
		monitoring.Badf("-out is required")
		flag.Usage()
		os.Exit(2)
	}

	var in io.Reader = os.Stdin
	if !*beacon && *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			monitoring.Badf("%v", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	n, err := generate(in, *outPath, *beacon)
	if err != nil {
		monitoring.Badf("%v", err)
		os.Exit(1)
	}
	monitoring.Goodf("wrote %d waypoints to %s", n, *outPath)
}
