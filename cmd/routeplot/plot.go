package main

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/telemetry"
)

var (
	routeColour = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	traceColour = color.RGBA{R: 200, G: 60, B: 40, A: 255}
	steerColour = color.RGBA{R: 30, G: 150, B: 70, A: 255}
)

// routePoints projects the route onto the ground plane.
func routePoints(route *nav.Route) plotter.XYs {
	pts := make(plotter.XYs, route.Len())
	for i := range pts {
		p := route.At(i).Position
		pts[i] = plotter.XY{X: p.X, Y: p.Y}
	}
	return pts
}

// tracePoints returns the journalled vehicle positions in tick order.
func tracePoints(entries []telemetry.Entry) plotter.XYs {
	pts := make(plotter.XYs, len(entries))
	for i, e := range entries {
		pts[i] = plotter.XY{X: e.Position.X, Y: e.Position.Y}
	}
	return pts
}

// steerPoints returns the blended steer fraction per tick.
func steerPoints(entries []telemetry.Entry) plotter.XYs {
	pts := make(plotter.XYs, len(entries))
	for i, e := range entries {
		pts[i] = plotter.XY{X: float64(e.Seq), Y: e.Steer}
	}
	return pts
}

// mapPlot draws the route as a line through its waypoints and, when entries
// is non-empty, the driven trace over it.
func mapPlot(title string, route *nav.Route, entries []telemetry.Entry) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	pts := routePoints(route)
	line, scatter, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = routeColour
	line.Width = vg.Points(1)
	scatter.Color = routeColour
	scatter.Shape = draw.CircleGlyph{}
	scatter.Radius = vg.Points(2)
	p.Add(line, scatter)
	p.Legend.Add("route", line, scatter)

	if len(entries) > 0 {
		trace, err := plotter.NewLine(tracePoints(entries))
		if err != nil {
			return nil, err
		}
		trace.Color = traceColour
		trace.Width = vg.Points(1)
		p.Add(trace)
		p.Legend.Add("driven", trace)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// steerPlot draws the blended steer fraction over the run.
func steerPlot(title string, entries []telemetry.Entry) (*plot.Plot, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no journal entries to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Tick"
	p.Y.Label.Text = "Steer (0 right, 1 left)"
	p.Y.Min, p.Y.Max = 0, 1

	line, err := plotter.NewLine(steerPoints(entries))
	if err != nil {
		return nil, err
	}
	line.Color = steerColour
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(10*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
