// Command pilot is the onboard decision stage. It reads STATE (or PAIR)
// frames from the vehicle bridge, scans each for obstacles, blends that with
// route following and writes an ACTION frame back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/avc/internal/config"
	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/payload"
	"github.com/banshee-data/avc/internal/version"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitModel     = 3
	exitRoute     = 4
	exitProtocol  = 5
	exitIO        = 6
	exitRouteDone = 7
)

var (
	errUsage = errors.New("bad configuration")
	errModel = errors.New("model unavailable")
	errRoute = errors.New("route unavailable")
)

// exitCode maps an error returned by run to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, nav.ErrRouteExhausted):
		return exitRouteDone
	case errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, errModel):
		return exitModel
	case errors.Is(err, errRoute), errors.Is(err, nav.ErrEmptyRoute), errors.Is(err, nav.ErrShortRead):
		return exitRoute
	case errors.Is(err, payload.ErrProtocol):
		return exitProtocol
	case errors.Is(err, payload.ErrEOF), errors.Is(err, payload.ErrIO), errors.Is(err, payload.ErrShortWrite):
		return exitIO
	}
	return exitFailure
}

type cliFlags struct {
	config      *string
	modelDir    *string
	hidden      *int
	weights     *string
	route       *string
	beacon      *bool
	mode        *string
	scope       *string
	policy      *string
	confidence  *float64
	forward     *bool
	calibration *string
	in          *string
	out         *string
	pose        *string
	journal     *string
	tick        *time.Duration
	noColour    *bool
	version     *bool
}

func defineFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		config:      fs.String("config", "", "JSON config file (flags override it)"),
		modelDir:    fs.String("model-dir", "", "directory holding dense/dense_1 .kernel and .bias files"),
		hidden:      fs.Int("hidden", 0, "hidden layer width the weights were trained with"),
		weights:     fs.String("weights", "", "weight element kind: f32 or f16"),
		route:       fs.String("route", "", "route file to follow"),
		beacon:      fs.Bool("beacon", false, "drive toward a single far waypoint straight ahead"),
		mode:        fs.String("mode", "", "navigation mode: vision, deadreckon or odometry"),
		scope:       fs.String("scope", "", "waypoint cost scope: waypoint or scan"),
		policy:      fs.String("policy", "", "target column policy: edge or quarter"),
		confidence:  fs.Float64("confidence", 0, "fixed avoidance confidence in [0, 1]"),
		forward:     fs.Bool("forward", false, "emit PAIR frames with the annotated state"),
		calibration: fs.String("calibration", "", "steering/throttle calibration blob"),
		in:          fs.String("in", "", "frame input endpoint (-, serial:/dev/tty..., or path)"),
		out:         fs.String("out", "", "action output endpoint (-, serial:/dev/tty..., or path)"),
		pose:        fs.String("pose", "", "pose record stream endpoint"),
		journal:     fs.String("journal", "", "sqlite journal path"),
		tick:        fs.Duration("tick", 0, "minimum time per control tick"),
		noColour:    fs.Bool("no-colour", false, "disable ANSI colour in log tags"),
		version:     fs.Bool("version", false, "print version and exit"),
	}
}

// resolve loads the config file, if any, and lays explicitly set flags over
// it.
func (f *cliFlags) resolve(fs *flag.FlagSet) (*config.PilotConfig, error) {
	cfg := config.EmptyPilotConfig()
	if *f.config != "" {
		loaded, err := config.LoadPilotConfig(*f.config)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "model-dir":
			cfg.ModelDir = f.modelDir
		case "hidden":
			cfg.HiddenUnits = f.hidden
		case "weights":
			cfg.WeightKind = f.weights
		case "route":
			cfg.RoutePath = f.route
		case "beacon":
			cfg.Beacon = f.beacon
		case "mode":
			cfg.Mode = f.mode
		case "scope":
			cfg.MinCostScope = f.scope
		case "policy":
			cfg.TargetPolicy = f.policy
		case "confidence":
			cfg.FixedConfidence = f.confidence
		case "forward":
			cfg.ForwardState = f.forward
		case "calibration":
			cfg.CalibrationPath = f.calibration
		case "in":
			cfg.Input = f.in
		case "out":
			cfg.Output = f.out
		case "pose":
			cfg.PoseInput = f.pose
		case "journal":
			cfg.JournalPath = f.journal
		case "tick":
			s := f.tick.String()
			cfg.TickInterval = &s
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return cfg, nil
}

func main() {
	fl := defineFlags(flag.CommandLine)
	flag.Parse()

	if *fl.version {
		fmt.Println(version.String("pilot"))
		return
	}

	monitoring.SetProcessName("pilot")
	monitoring.SetColour(!*fl.noColour)

	if flag.NArg() > 0 {
		monitoring.Badf("unexpected arguments: %v", flag.Args())
		flag.Usage()
		os.Exit(exitUsage)
	}

	cfg, err := fl.resolve(flag.CommandLine)
	if err != nil {
		monitoring.Badf("%v", err)
		os.Exit(exitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()

	if err != nil {
		monitoring.Badf("%v", err)
		os.Exit(exitCode(err))
	}
	monitoring.Goodf("stopped")
}
