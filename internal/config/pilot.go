package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/tensor"
	"github.com/banshee-data/avc/internal/vision"
)

// DefaultConfigPath is the path to the canonical pilot defaults file.
const DefaultConfigPath = "config/pilot.defaults.json"

// PilotConfig is the pilot's startup configuration. Every field is optional;
// the Get* methods supply the default for anything left out, so partial
// files are safe.
type PilotConfig struct {
	// Model
	ModelDir    *string `json:"model_dir,omitempty"`
	HiddenUnits *int    `json:"hidden_units,omitempty"`
	WeightKind  *string `json:"weight_kind,omitempty"` // "f32" or "f16"

	// Avoidance
	TargetPolicy    *string  `json:"target_policy,omitempty"`
	WidthWeight     *float64 `json:"width_weight,omitempty"`
	FixedConfidence *float64 `json:"fixed_confidence,omitempty"`
	ForwardState    *bool    `json:"forward_state,omitempty"`

	// Navigation
	Mode               *string  `json:"mode,omitempty"`
	MinCostScope       *string  `json:"min_cost_scope,omitempty"`
	ProximityThreshold *float64 `json:"proximity_threshold,omitempty"`
	RoutePath          *string  `json:"route_path,omitempty"`
	Beacon             *bool    `json:"beacon,omitempty"`
	CalibrationPath    *string  `json:"calibration_path,omitempty"`

	// Throttle PID
	PIDP *float64 `json:"pid_p,omitempty"`
	PIDI *float64 `json:"pid_i,omitempty"`
	PIDD *float64 `json:"pid_d,omitempty"`

	// Streams
	Input        *string `json:"input,omitempty"`
	Output       *string `json:"output,omitempty"`
	PoseInput    *string `json:"pose_input,omitempty"`
	JournalPath  *string `json:"journal_path,omitempty"`
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "50ms"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPilotConfig returns a PilotConfig with all fields unset.
func EmptyPilotConfig() *PilotConfig {
	return &PilotConfig{}
}

// DefaultPilotConfig returns a PilotConfig with every field set to its
// default.
func DefaultPilotConfig() *PilotConfig {
	pid := nav.DefaultThrottlePID()
	return &PilotConfig{
		ModelDir:           ptrString("model"),
		HiddenUnits:        ptrInt(100),
		WeightKind:         ptrString("f32"),
		TargetPolicy:       ptrString("edge"),
		WidthWeight:        ptrFloat64(1),
		FixedConfidence:    ptrFloat64(0),
		ForwardState:       ptrBool(false),
		Mode:               ptrString("deadreckon"),
		MinCostScope:       ptrString("waypoint"),
		ProximityThreshold: ptrFloat64(nav.DefaultProximity),
		RoutePath:          ptrString(""),
		Beacon:             ptrBool(false),
		CalibrationPath:    ptrString(""),
		PIDP:               ptrFloat64(pid.P),
		PIDI:               ptrFloat64(pid.I),
		PIDD:               ptrFloat64(pid.D),
		Input:              ptrString("-"),
		Output:             ptrString("-"),
		PoseInput:          ptrString(""),
		JournalPath:        ptrString(""),
		TickInterval:       ptrString("0s"),
	}
}

// LoadPilotConfig loads a PilotConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadPilotConfig(path string) (*PilotConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPilotConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *PilotConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPilotConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *PilotConfig) Validate() error {
	if c.HiddenUnits != nil && *c.HiddenUnits <= 0 {
		return fmt.Errorf("hidden_units must be positive, got %d", *c.HiddenUnits)
	}
	if c.WeightKind != nil {
		if _, err := parseWeightKind(*c.WeightKind); err != nil {
			return err
		}
	}

	if c.TargetPolicy != nil {
		if _, err := vision.ParseTargetPolicy(*c.TargetPolicy); err != nil {
			return err
		}
	}
	if c.WidthWeight != nil && *c.WidthWeight < 0 {
		return fmt.Errorf("width_weight must be non-negative, got %f", *c.WidthWeight)
	}
	if c.FixedConfidence != nil {
		if *c.FixedConfidence < 0 || *c.FixedConfidence > 1 {
			return fmt.Errorf("fixed_confidence must be between 0 and 1, got %f", *c.FixedConfidence)
		}
	}

	if c.Mode != nil {
		if _, err := nav.ParseMode(*c.Mode); err != nil {
			return err
		}
	}
	if c.MinCostScope != nil {
		if _, err := nav.ParseCostScope(*c.MinCostScope); err != nil {
			return err
		}
	}
	if c.ProximityThreshold != nil && *c.ProximityThreshold < 0 {
		return fmt.Errorf("proximity_threshold must be non-negative, got %f", *c.ProximityThreshold)
	}

	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("tick_interval must be non-negative, got %s", d)
		}
	}

	if c.GetBeacon() && c.GetRoutePath() != "" {
		return fmt.Errorf("beacon and route_path are mutually exclusive")
	}

	return nil
}

func parseWeightKind(s string) (tensor.Kind, error) {
	switch s {
	case "", "f32", "float32":
		return tensor.Float32, nil
	case "f16", "float16", "half":
		return tensor.Float16, nil
	}
	return 0, fmt.Errorf("unknown weight_kind %q: expected f32 or f16", s)
}

// GetModelDir returns the weights directory or the default.
func (c *PilotConfig) GetModelDir() string {
	if c.ModelDir == nil || *c.ModelDir == "" {
		return "model"
	}
	return *c.ModelDir
}

// GetHiddenUnits returns the hidden layer width or the default.
func (c *PilotConfig) GetHiddenUnits() int {
	if c.HiddenUnits == nil {
		return 100
	}
	return *c.HiddenUnits
}

// GetWeightKind returns the on-disk weight element kind.
func (c *PilotConfig) GetWeightKind() tensor.Kind {
	if c.WeightKind == nil {
		return tensor.Float32
	}
	k, err := parseWeightKind(*c.WeightKind)
	if err != nil {
		return tensor.Float32
	}
	return k
}

// GetTargetPolicy returns the target column policy or the default.
func (c *PilotConfig) GetTargetPolicy() vision.TargetPolicy {
	if c.TargetPolicy == nil {
		return vision.PolicyEdge
	}
	p, err := vision.ParseTargetPolicy(*c.TargetPolicy)
	if err != nil {
		return vision.PolicyEdge
	}
	return p
}

func (c *PilotConfig) GetWidthWeight() float64 {
	if c.WidthWeight == nil {
		return 1
	}
	return *c.WidthWeight
}

func (c *PilotConfig) GetFixedConfidence() float64 {
	if c.FixedConfidence == nil {
		return 0
	}
	return *c.FixedConfidence
}

func (c *PilotConfig) GetForwardState() bool {
	if c.ForwardState == nil {
		return false
	}
	return *c.ForwardState
}

// GetMode returns the navigation mode or the default, dead reckoning.
func (c *PilotConfig) GetMode() nav.Mode {
	if c.Mode == nil {
		return nav.ModeDeadReckoning
	}
	m, err := nav.ParseMode(*c.Mode)
	if err != nil {
		return nav.ModeDeadReckoning
	}
	return m
}

// GetMinCostScope returns where the waypoint search resets its running
// minimum.
func (c *PilotConfig) GetMinCostScope() nav.CostScope {
	if c.MinCostScope == nil {
		return nav.ScopePerWaypoint
	}
	s, err := nav.ParseCostScope(*c.MinCostScope)
	if err != nil {
		return nav.ScopePerWaypoint
	}
	return s
}

func (c *PilotConfig) GetProximityThreshold() float64 {
	if c.ProximityThreshold == nil {
		return nav.DefaultProximity
	}
	return *c.ProximityThreshold
}

func (c *PilotConfig) GetRoutePath() string {
	if c.RoutePath == nil {
		return ""
	}
	return *c.RoutePath
}

func (c *PilotConfig) GetBeacon() bool {
	if c.Beacon == nil {
		return false
	}
	return *c.Beacon
}

func (c *PilotConfig) GetCalibrationPath() string {
	if c.CalibrationPath == nil {
		return ""
	}
	return *c.CalibrationPath
}

// GetPID returns the throttle PID gains, defaulting each unset gain.
func (c *PilotConfig) GetPID() nav.PID {
	pid := nav.DefaultThrottlePID()
	if c.PIDP != nil {
		pid.P = *c.PIDP
	}
	if c.PIDI != nil {
		pid.I = *c.PIDI
	}
	if c.PIDD != nil {
		pid.D = *c.PIDD
	}
	return pid
}

func (c *PilotConfig) GetInput() string {
	if c.Input == nil || *c.Input == "" {
		return "-"
	}
	return *c.Input
}

func (c *PilotConfig) GetOutput() string {
	if c.Output == nil || *c.Output == "" {
		return "-"
	}
	return *c.Output
}

func (c *PilotConfig) GetPoseInput() string {
	if c.PoseInput == nil {
		return ""
	}
	return *c.PoseInput
}

func (c *PilotConfig) GetJournalPath() string {
	if c.JournalPath == nil {
		return ""
	}
	return *c.JournalPath
}

// GetTickInterval parses and returns TickInterval. Zero disables the gate.
func (c *PilotConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return 0 // default on parse error
	}
	return d
}
