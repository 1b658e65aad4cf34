package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/telemetry"
)

func init() {
	monitoring.SetLogger(nil)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func writeRoute(t *testing.T, dir string) string {
	t.Helper()
	route, err := nav.NewRoute([]nav.Waypoint{
		{Position: r3.Vec{}},
		{Position: r3.Vec{X: 2, Y: 5}},
		{Position: r3.Vec{X: 6, Y: 6}},
	})
	require.NoError(t, err)
	path := filepath.Join(dir, "loop.route")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, nav.WriteRoute(f, route))
	require.NoError(t, f.Close())
	return path
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, pngMagic), "%s is not a PNG", path)
}

func TestRender_RouteOnly(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "route.png")

	written, err := render(options{route: writeRoute(t, dir), out: out})
	require.NoError(t, err)
	assert.Equal(t, []string{out}, written)
	assertPNG(t, out)
}

func TestRender_WithJournal(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "journal.db")

	j, err := telemetry.Open(journal)
	require.NoError(t, err)
	t0 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = j.StartRun("deadreckon", t0)
	require.NoError(t, err)
	latest, err := j.StartRun("deadreckon", t0.Add(time.Hour))
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, j.Record(latest, telemetry.Entry{
			Seq:      i,
			At:       t0.Add(time.Duration(i) * time.Second),
			Steer:    0.1 * float64(i),
			Position: r3.Vec{X: 0.4 * float64(i), Y: float64(i)},
		}))
	}
	require.NoError(t, j.Close())

	out := filepath.Join(dir, "run.png")
	written, err := render(options{route: writeRoute(t, dir), journal: journal, out: out})
	require.NoError(t, err)
	require.Equal(t, []string{out, filepath.Join(dir, "run_steer.png")}, written)
	for _, path := range written {
		assertPNG(t, path)
	}

	id, entries, err := loadEntries(journal, "")
	require.NoError(t, err)
	assert.Equal(t, latest, id, "latest run is the default")
	assert.Len(t, entries, 5)
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := render(options{route: filepath.Join(dir, "missing.route"), out: filepath.Join(dir, "x.png")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(dir, "empty.db")
	j, err := telemetry.Open(empty)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	_, err = render(options{route: writeRoute(t, dir), journal: empty, out: filepath.Join(dir, "y.png")})
	assert.ErrorContains(t, err, "no runs")
}

func TestSteerPath(t *testing.T) {
	assert.Equal(t, "out/route_steer.png", steerPath("out/route.png"))
	assert.Equal(t, "plot_steer", steerPath("plot"))
}
