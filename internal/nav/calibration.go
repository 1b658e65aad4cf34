package nav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// CalibrationSize is the size of the calibration blob: steering min/max then
// throttle min/max as little-endian float32.
const CalibrationSize = 4 * 4

// Range is a channel's output span.
type Range struct {
	Min, Max float64
}

// Lerp maps p in [0, 1] onto the range.
func (r Range) Lerp(p float64) float64 {
	return r.Min + p*(r.Max-r.Min)
}

// Calibration holds the output span of each drive channel.
type Calibration struct {
	Steering Range
	Throttle Range
}

// DefaultCalibration spans the full action byte on both channels.
func DefaultCalibration() Calibration {
	return Calibration{
		Steering: Range{Min: 0, Max: 255},
		Throttle: Range{Min: 0, Max: 255},
	}
}

// ReadCalibration decodes one calibration blob from r.
func ReadCalibration(r io.Reader) (Calibration, error) {
	var buf [CalibrationSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Calibration{}, fmt.Errorf("reading calibration: %w", err)
	}
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	cal := Calibration{
		Steering: Range{Min: f(0), Max: f(1)},
		Throttle: Range{Min: f(2), Max: f(3)},
	}
	if err := cal.Validate(); err != nil {
		return Calibration{}, err
	}
	return cal, nil
}

// LoadCalibration reads the calibration blob at path.
func LoadCalibration(path string) (Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("open calibration: %w", err)
	}
	defer f.Close()
	return ReadCalibration(f)
}

// Validate checks that both ranges fit in an action byte.
func (c Calibration) Validate() error {
	for _, ch := range []struct {
		name string
		r    Range
	}{{"steering", c.Steering}, {"throttle", c.Throttle}} {
		if math.IsNaN(ch.r.Min) || math.IsNaN(ch.r.Max) ||
			ch.r.Min < 0 || ch.r.Max > 255 || ch.r.Min > ch.r.Max {
			return fmt.Errorf("%s calibration [%g, %g] outside [0, 255]", ch.name, ch.r.Min, ch.r.Max)
		}
	}
	return nil
}
