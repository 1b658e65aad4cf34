package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/avc/internal/config"
	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/nn"
	"github.com/banshee-data/avc/internal/payload"
	"github.com/banshee-data/avc/internal/pose"
	"github.com/banshee-data/avc/internal/telemetry"
	"github.com/banshee-data/avc/internal/tensor"
	"github.com/banshee-data/avc/internal/timeutil"
	"github.com/banshee-data/avc/internal/vision"
)

func init() {
	monitoring.SetLogger(nil)
}

func strp(s string) *string { return &s }

type fixedAvoider struct {
	res vision.Result
}

func (a fixedAvoider) Scan(*payload.State) (vision.Result, error) { return a.res, nil }

func stateFrames(t *testing.T, n int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := payload.NewWriter(&buf)
	for i := 0; i < n; i++ {
		f := payload.Frame{Type: payload.TypeState}
		f.State.Distance = uint32(i)
		require.NoError(t, w.WriteFrame(&f))
	}
	return &buf
}

func readAll(t *testing.T, b []byte, expect payload.Type) []payload.Frame {
	t.Helper()
	r := payload.NewReader(bytes.NewReader(b))
	var out []payload.Frame
	for {
		var f payload.Frame
		err := r.ReadFrame(&f, expect)
		if payload.EndOfStream(err) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func newTestPilot(t *testing.T, cfg *config.PilotConfig, avoider nav.Avoider, shared *pose.Shared, in *bytes.Buffer, out *bytes.Buffer) *pilot {
	t.Helper()
	ctrl, err := buildController(cfg, avoider, shared)
	require.NoError(t, err)
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	return &pilot{
		ctrl:    ctrl,
		reader:  payload.NewReader(in),
		writer:  payload.NewWriter(out),
		forward: cfg.GetForwardState(),
		gate:    &timeutil.TimeGate{Clock: clock},
		clock:   clock,
	}
}

func TestLoop_VisionActions(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	cfg.Mode = strp("vision")

	var out bytes.Buffer
	p := newTestPilot(t, cfg, fixedAvoider{vision.Result{Steer: 0.5}}, nil, stateFrames(t, 3), &out)
	require.NoError(t, p.loop(context.Background()))

	frames := readAll(t, out.Bytes(), payload.TypeAction)
	require.Len(t, frames, 3)
	for _, f := range frames {
		assert.Equal(t, payload.TypeAction, f.Type)
		assert.Equal(t, uint8(127), f.Action.Steering)
		assert.GreaterOrEqual(t, f.Action.Throttle, uint8(119))
	}
}

func TestLoop_ForwardWritesPairs(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	cfg.Mode = strp("vision")
	fwd := true
	cfg.ForwardState = &fwd

	var out bytes.Buffer
	p := newTestPilot(t, cfg, fixedAvoider{}, nil, stateFrames(t, 2), &out)
	require.NoError(t, p.loop(context.Background()))

	frames := readAll(t, out.Bytes(), payload.TypePair)
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(1), frames[1].State.Distance, "state is forwarded")
}

func TestLoop_RouteExhaustedStopsVehicle(t *testing.T) {
	dir := t.TempDir()
	routePath := filepath.Join(dir, "short.route")
	route, err := nav.NewRoute([]nav.Waypoint{{Position: r3.Vec{Y: 0.3}}})
	require.NoError(t, err)
	f, err := os.Create(routePath)
	require.NoError(t, err)
	require.NoError(t, nav.WriteRoute(f, route))
	require.NoError(t, f.Close())

	cfg := config.EmptyPilotConfig()
	cfg.RoutePath = &routePath

	shared := new(pose.Shared)
	shared.Store(pose.Pose{Heading: r3.Vec{Y: 1}})

	var out bytes.Buffer
	p := newTestPilot(t, cfg, fixedAvoider{}, shared, stateFrames(t, 5), &out)
	err = p.loop(context.Background())
	assert.ErrorIs(t, err, nav.ErrRouteExhausted)
	assert.Equal(t, exitRouteDone, exitCode(err))

	assert.Zero(t, out.Len(), "no action after the route runs out")
}

func TestLoop_ProtocolError(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	cfg.Mode = strp("vision")

	in := bytes.NewBuffer(make([]byte, payload.HeaderSize))
	var out bytes.Buffer
	p := newTestPilot(t, cfg, fixedAvoider{}, nil, in, &out)
	err := p.loop(context.Background())
	assert.ErrorIs(t, err, payload.ErrProtocol)
	assert.Equal(t, exitProtocol, exitCode(err))
	assert.Zero(t, out.Len())
}

func TestLoop_TruncatedFrame(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	cfg.Mode = strp("vision")

	in := stateFrames(t, 1)
	in.Truncate(in.Len() - 10)
	p := newTestPilot(t, cfg, fixedAvoider{}, nil, in, new(bytes.Buffer))
	err := p.loop(context.Background())
	assert.ErrorIs(t, err, payload.ErrEOF)
	assert.Equal(t, exitIO, exitCode(err))
}

func TestLoop_CancelledContext(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	cfg.Mode = strp("vision")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	p := newTestPilot(t, cfg, fixedAvoider{}, nil, stateFrames(t, 3), &out)
	assert.NoError(t, p.loop(ctx))
	assert.Zero(t, out.Len())
}

func TestLoop_Journal(t *testing.T) {
	j, err := telemetry.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	id, err := j.StartRun("vision", time.Now())
	require.NoError(t, err)

	cfg := config.EmptyPilotConfig()
	cfg.Mode = strp("vision")
	res := vision.Result{Steer: 0.8, Histogram: []float64{1, 5, 1, 1, 8}, Region: vision.Region{Start: 4, End: 5, Score: 4}, Target: 4}

	p := newTestPilot(t, cfg, fixedAvoider{res}, nil, stateFrames(t, 2), new(bytes.Buffer))
	p.journal, p.runID = j, id
	require.NoError(t, p.loop(context.Background()))

	entries, err := j.Entries(id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[1].Seq)
	assert.Equal(t, res.Histogram, entries[0].Histogram)
	assert.Equal(t, 4, entries[0].RegionStart)
	assert.Equal(t, uint8(204), entries[0].Steering)
	assert.Equal(t, nav.NoWaypoint, entries[0].Goal)
}

func TestEntryFromDecision(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	hist := []float64{1, 2}
	d := nav.Decision{
		Action: payload.Action{Throttle: 120, Steering: 30},
		Scan:   vision.Result{Histogram: hist, Confidence: 0.4, Region: vision.Region{Start: 1, End: 2, Score: 1}},
		Pose:   pose.Pose{Position: r3.Vec{X: 1}, Heading: r3.Vec{Y: 1}},
		Goal:   2,
		Next:   3,
		Steer:  0.1,
	}
	e := entryFromDecision(7, timeutil.NewMockClock(at), d)

	assert.Equal(t, int64(7), e.Seq)
	assert.True(t, e.At.Equal(at))
	assert.Equal(t, uint8(120), e.Throttle)
	assert.Equal(t, 0.4, e.Confidence)
	assert.Equal(t, 3, e.Next)
	assert.Equal(t, r3.Vec{Y: 1}, e.Heading)

	hist[0] = 99
	assert.Equal(t, 1.0, e.Histogram[0], "histogram is copied")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("%w: x", errUsage), exitUsage},
		{fmt.Errorf("%w: %w", errModel, os.ErrNotExist), exitModel},
		{fmt.Errorf("wrap: %w", nav.ErrEmptyRoute), exitRoute},
		{nav.ErrShortRead, exitRoute},
		{fmt.Errorf("frame 3: %w", payload.ErrProtocol), exitProtocol},
		{payload.ErrShortWrite, exitIO},
		{payload.ErrIO, exitIO},
		{nav.ErrRouteExhausted, exitRouteDone},
		{errors.New("other"), exitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestResolve_FlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pilot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mode": "odometry", "hidden_units": 64, "tick_interval": "1s"}`), 0644))

	fs := flag.NewFlagSet("pilot", flag.ContinueOnError)
	fl := defineFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", path, "-mode", "vision", "-tick", "20ms", "-forward"}))

	cfg, err := fl.resolve(fs)
	require.NoError(t, err)
	assert.Equal(t, nav.ModeVision, cfg.GetMode())
	assert.Equal(t, 64, cfg.GetHiddenUnits(), "unset flag keeps file value")
	assert.Equal(t, 20*time.Millisecond, cfg.GetTickInterval())
	assert.True(t, cfg.GetForwardState())
}

func TestResolve_Invalid(t *testing.T) {
	fs := flag.NewFlagSet("pilot", flag.ContinueOnError)
	fl := defineFlags(fs)
	require.NoError(t, fs.Parse([]string{"-mode", "gps"}))
	_, err := fl.resolve(fs)
	assert.ErrorIs(t, err, errUsage)

	fs = flag.NewFlagSet("pilot", flag.ContinueOnError)
	fl = defineFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", "pilot.yaml"}))
	_, err = fl.resolve(fs)
	assert.Equal(t, exitUsage, exitCode(err))
}

func TestBuildController_Errors(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	_, err := buildController(cfg, fixedAvoider{}, nil)
	assert.Equal(t, exitRoute, exitCode(err), "dead reckoning without a route")

	cfg.RoutePath = strp(filepath.Join(t.TempDir(), "missing.route"))
	_, err = buildController(cfg, fixedAvoider{}, nil)
	assert.Equal(t, exitRoute, exitCode(err))

	cfg = config.EmptyPilotConfig()
	beacon := true
	cfg.Beacon = &beacon
	ctrl, err := buildController(cfg, fixedAvoider{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ctrl.Cursor())
}

// writeWeights writes a classifier whose output layer always favours the
// asphalt class.
func writeWeights(t *testing.T, dir string, hidden int) {
	t.Helper()
	save := func(path string, data []float32, dims ...int) {
		var x *tensor.Tensor
		var err error
		if data == nil {
			x, err = tensor.New(tensor.Float32, dims...)
		} else {
			x, err = tensor.FromFloat32s(data, dims...)
		}
		require.NoError(t, err)
		require.NoError(t, tensor.Save(path, x))
	}
	save(nn.KernelPath(dir, "dense"), nil, vision.CropInputs, hidden)
	save(nn.BiasPath(dir, "dense"), nil, 1, hidden)
	save(nn.KernelPath(dir, "dense_1"), nil, hidden, vision.Classes)
	save(nn.BiasPath(dir, "dense_1"), []float32{0, 0, 4}, 1, vision.Classes)
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "model")
	require.NoError(t, os.Mkdir(modelDir, 0o755))
	writeWeights(t, modelDir, 4)

	inPath := filepath.Join(dir, "frames.bin")
	require.NoError(t, os.WriteFile(inPath, stateFrames(t, 4).Bytes(), 0o644))
	outPath := filepath.Join(dir, "actions.bin")
	journalPath := filepath.Join(dir, "journal.db")

	hidden := 4
	cfg := config.EmptyPilotConfig()
	cfg.ModelDir = &modelDir
	cfg.HiddenUnits = &hidden
	cfg.Mode = strp("vision")
	cfg.Input = &inPath
	cfg.Output = &outPath
	cfg.JournalPath = &journalPath

	require.NoError(t, run(context.Background(), cfg))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Len(t, readAll(t, raw, payload.TypeAction), 4)

	j, err := telemetry.Open(journalPath)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "vision", runs[0].Mode)
	assert.Equal(t, 4, runs[0].Entries)
}

func TestRun_MissingModel(t *testing.T) {
	cfg := config.EmptyPilotConfig()
	cfg.ModelDir = strp(filepath.Join(t.TempDir(), "nowhere"))
	err := run(context.Background(), cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, exitModel, exitCode(err))
}
