package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/avc/internal/config"
	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/nn"
	"github.com/banshee-data/avc/internal/payload"
	"github.com/banshee-data/avc/internal/pose"
	"github.com/banshee-data/avc/internal/telemetry"
	"github.com/banshee-data/avc/internal/tensor"
	"github.com/banshee-data/avc/internal/timeutil"
	"github.com/banshee-data/avc/internal/transport"
	"github.com/banshee-data/avc/internal/vision"
)

// loadScanner loads the colour classifier and wraps it in a frame scanner.
func loadScanner(cfg *config.PilotConfig) (*vision.Scanner, error) {
	input, err := tensor.New(tensor.Float32, 1, vision.CropInputs)
	if err != nil {
		return nil, err
	}
	specs := nn.ClassifierSpecs(vision.CropInputs, cfg.GetHiddenUnits(), vision.Classes, cfg.GetWeightKind())
	model, err := nn.LoadModel(cfg.GetModelDir(), input, specs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errModel, err)
	}

	scanner, err := vision.NewScanner(model, vision.Config{
		WidthWeight:     cfg.GetWidthWeight(),
		Policy:          cfg.GetTargetPolicy(),
		FixedConfidence: cfg.GetFixedConfidence(),
		ForwardState:    cfg.GetForwardState(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errModel, err)
	}
	monitoring.Logf("loaded classifier from %s (%d hidden, %s)", cfg.GetModelDir(), cfg.GetHiddenUnits(), cfg.GetWeightKind())
	return scanner, nil
}

// loadRoute returns the beacon route, the route file, or nil for none.
func loadRoute(cfg *config.PilotConfig) (*nav.Route, error) {
	if cfg.GetBeacon() {
		return nav.BeaconRoute(), nil
	}
	path := cfg.GetRoutePath()
	if path == "" {
		return nil, nil
	}
	route, err := nav.LoadRoute(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errRoute, err)
	}
	monitoring.Logf("loaded %d waypoints from %s", route.Len(), path)
	return route, nil
}

func navConfig(cfg *config.PilotConfig) (nav.Config, error) {
	nc := nav.Config{
		Mode:        cfg.GetMode(),
		Scope:       cfg.GetMinCostScope(),
		Proximity:   cfg.GetProximityThreshold(),
		PID:         cfg.GetPID(),
		Calibration: nav.DefaultCalibration(),
	}
	if path := cfg.GetCalibrationPath(); path != "" {
		cal, err := nav.LoadCalibration(path)
		if err != nil {
			return nc, fmt.Errorf("%w: %w", errUsage, err)
		}
		nc.Calibration = cal
	}
	return nc, nil
}

// buildController wires the scanner, route and calibration into a controller
// reading pose from shared.
func buildController(cfg *config.PilotConfig, avoider nav.Avoider, shared *pose.Shared) (*nav.Controller, error) {
	nc, err := navConfig(cfg)
	if err != nil {
		return nil, err
	}
	route, err := loadRoute(cfg)
	if err != nil {
		return nil, err
	}
	ctrl, err := nav.NewController(nc, avoider, route, shared)
	if err != nil {
		if errors.Is(err, nav.ErrEmptyRoute) {
			return nil, fmt.Errorf("%w: %w", errRoute, err)
		}
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return ctrl, nil
}

// pilot is one run of the control loop.
type pilot struct {
	ctrl    *nav.Controller
	reader  *payload.Reader
	writer  *payload.Writer
	forward bool
	gate    *timeutil.TimeGate
	clock   timeutil.Clock

	journal *telemetry.Journal
	runID   string
}

// loop reads frames until the input ends, the context is cancelled, or the
// route runs out. A clean close of the input between frames is not an error.
// No action is written for the frame on which the route runs out.
func (p *pilot) loop(ctx context.Context) error {
	var f payload.Frame
	for seq := int64(0); ; seq++ {
		if ctx.Err() != nil {
			return nil
		}
		p.gate.Open()

		if err := p.reader.ReadFrame(&f, payload.TypeState|payload.TypePair); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if payload.EndOfStream(err) {
				monitoring.Logf("input closed after %d frames", seq)
				return nil
			}
			return fmt.Errorf("frame %d: %w", seq, err)
		}

		d, err := p.ctrl.Tick(&f.State)
		if errors.Is(err, nav.ErrRouteExhausted) {
			monitoring.Logf("route exhausted at frame %d", seq)
			return err
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", seq, err)
		}

		f.Action = d.Action
		f.Type = payload.TypeAction
		if p.forward {
			f.Type = payload.TypePair
		}
		if err := p.writer.WriteFrame(&f); err != nil {
			return fmt.Errorf("frame %d: %w", seq, err)
		}
		if err := p.record(seq, d); err != nil {
			return err
		}

		p.gate.Close()
	}
}

func (p *pilot) record(seq int64, d nav.Decision) error {
	if p.journal == nil {
		return nil
	}
	if err := p.journal.Record(p.runID, entryFromDecision(seq, p.clock, d)); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func entryFromDecision(seq int64, clock timeutil.Clock, d nav.Decision) telemetry.Entry {
	return telemetry.Entry{
		Seq:         seq,
		At:          clock.Now(),
		Histogram:   append([]float64(nil), d.Scan.Histogram...),
		RegionStart: d.Scan.Region.Start,
		RegionEnd:   d.Scan.Region.End,
		RegionScore: d.Scan.Region.Score,
		Steer:       d.Steer,
		Confidence:  d.Scan.Confidence,
		Throttle:    d.Action.Throttle,
		Steering:    d.Action.Steering,
		Goal:        d.Goal,
		Next:        d.Next,
		Position:    d.Pose.Position,
		Heading:     d.Pose.Heading,
	}
}

// streams are the opened endpoints for one run.
type streams struct {
	in      io.Reader
	out     io.Writer
	pose    io.Reader
	closers []io.Closer
	once    sync.Once
}

// Close closes every opened endpoint once, in reverse order.
func (s *streams) Close() {
	s.once.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i].Close()
		}
	})
}

// openStreams opens the frame input and output and the optional pose feed.
// When input and output name the same serial port it is opened once.
func openStreams(cfg *config.PilotConfig) (*streams, error) {
	s := &streams{}
	inSpec, outSpec := cfg.GetInput(), cfg.GetOutput()

	if ep, err := transport.ParseEndpoint(inSpec); err == nil && ep.Kind == transport.KindSerial && inSpec == outSpec {
		rw, err := transport.OpenDuplex(inSpec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", payload.ErrIO, err)
		}
		s.in, s.out = rw, rw
		s.closers = append(s.closers, rw)
	} else {
		in, err := transport.OpenInput(inSpec)
		if err != nil {
			return nil, fmt.Errorf("%w: input: %w", payload.ErrIO, err)
		}
		s.in = in
		s.closers = append(s.closers, in)

		out, err := transport.OpenOutput(outSpec)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: output: %w", payload.ErrIO, err)
		}
		s.out = out
		s.closers = append(s.closers, out)
	}

	if spec := cfg.GetPoseInput(); spec != "" {
		pr, err := transport.OpenInput(spec)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: pose: %w", payload.ErrIO, err)
		}
		s.pose = pr
		s.closers = append(s.closers, pr)
	}
	return s, nil
}

// run builds the pilot from cfg and drives it until the input ends or ctx is
// cancelled. The pose feed, if configured, runs alongside the control loop.
func run(ctx context.Context, cfg *config.PilotConfig) error {
	scanner, err := loadScanner(cfg)
	if err != nil {
		return err
	}
	shared := new(pose.Shared)
	ctrl, err := buildController(cfg, scanner, shared)
	if err != nil {
		return err
	}

	s, err := openStreams(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	clock := timeutil.RealClock{}
	p := &pilot{
		ctrl:    ctrl,
		reader:  payload.NewReader(s.in),
		writer:  payload.NewWriter(s.out),
		forward: cfg.GetForwardState(),
		gate:    &timeutil.TimeGate{Interval: cfg.GetTickInterval(), Clock: clock},
		clock:   clock,
	}

	if path := cfg.GetJournalPath(); path != "" {
		j, err := telemetry.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		id, err := j.StartRun(cfg.GetMode().String(), clock.Now())
		if err != nil {
			return err
		}
		p.journal, p.runID = j, id
		monitoring.Logf("journal run %s in %s", id, path)
	}

	monitoring.Goodf("running in %s mode", cfg.GetMode())
	return drive(ctx, p, s, shared)
}

// drive runs the control loop and pose feed together. Whichever finishes
// first with an error stops the other; closing the streams unblocks reads
// that cannot see the context.
func drive(ctx context.Context, p *pilot, s *streams, shared *pose.Shared) error {
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, cancel := context.WithCancel(gctx)

	if s.pose != nil {
		g.Go(func() error {
			err := pose.Feed(loopCtx, s.pose, shared)
			if loopCtx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("pose feed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return p.loop(loopCtx)
	})
	g.Go(func() error {
		<-loopCtx.Done()
		s.Close()
		return nil
	})
	return g.Wait()
}
