// Package vision scores the frame for obstacles by sliding a colour classifier
// over fixed crops and picks the safest steering column.
package vision

import (
	"errors"
	"fmt"

	"github.com/banshee-data/avc/internal/payload"
	"github.com/banshee-data/avc/internal/tensor"
)

// Scan geometry. Crops are taken from each bucket at rows ScanStart+r, with r
// advancing by a step that starts at InitialStep and doubles after each crop,
// while r < ScanHeight. A crop that would run past the bottom of the frame
// ends the bucket's scan.
const (
	BucketWidth = 32
	Buckets     = payload.FrameW / BucketWidth
	CropSize    = 16
	Channels    = 3
	CropInputs  = CropSize * CropSize * Channels
	ScanStart   = 70
	ScanHeight  = 64
	InitialStep = 4
	Classes     = 3
)

// ErrModelShape is returned when the classifier does not take one flattened
// crop or does not produce three class scores.
var ErrModelShape = errors.New("classifier shape does not fit crop scan")

// Predictor runs the colour classifier. *nn.Model satisfies it.
type Predictor interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	InputShape() tensor.Shape
}

// Config tunes a Scanner.
type Config struct {
	// WidthWeight penalises wide regions in BestRegion.
	WidthWeight float64
	Policy      TargetPolicy
	// FixedConfidence is reported as Result.Confidence. The scan has no
	// confidence measure of its own.
	FixedConfidence float64
	// ForwardState paints each crop's class scores into the chroma plane.
	ForwardState bool
}

// DefaultConfig returns the scan settings used on the vehicle.
func DefaultConfig() Config {
	return Config{WidthWeight: 1, Policy: PolicyEdge}
}

// Result is the outcome of one Scan.
type Result struct {
	// Steer is the target bucket as a fraction of the bucket count, in [0, 1].
	Steer      float64
	Confidence float64
	Histogram  []float64
	Region     Region
	Target     int
}

// Scanner owns the classifier input and colour scratch buffers. It is not
// safe for concurrent use.
type Scanner struct {
	model Predictor
	cfg   Config
	x     *tensor.Tensor
	rgb   []RGB
	hist  []float64
}

// NewScanner checks that model takes a [1, CropInputs] input and allocates
// the scan buffers.
func NewScanner(model Predictor, cfg Config) (*Scanner, error) {
	in := model.InputShape()
	if in.Rank() != 2 || in.Dim(0) != 1 || in.Dim(1) != CropInputs {
		return nil, fmt.Errorf("%w: input %s, want [1 %d]", ErrModelShape, in, CropInputs)
	}
	x, err := tensor.NewWithShape(tensor.Float32, in)
	if err != nil {
		return nil, err
	}
	return &Scanner{
		model: model,
		cfg:   cfg,
		x:     x,
		rgb:   make([]RGB, payload.LumaPixels),
		hist:  make([]float64, Buckets),
	}, nil
}

// Scan scores every bucket of st and returns the steering fraction toward the
// best region. It marks the chosen column in st.Luma and, with ForwardState,
// overwrites the scanned chroma rows with the class scores.
func (s *Scanner) Scan(st *payload.State) (Result, error) {
	YUVToRGB(st.Luma[:], st.Chroma[:], s.rgb, payload.FrameW, payload.FrameH)

	for b := 0; b < Buckets; b++ {
		c := b * BucketWidth
		var sum float64
		for r, step := 0, InitialStep; r < ScanHeight; r, step = r+step, step*2 {
			top := ScanStart + r
			if top+CropSize > payload.FrameH {
				break
			}
			out, err := s.classify(top, c)
			if err != nil {
				return Result{}, fmt.Errorf("bucket %d row %d: %w", b, top, err)
			}
			sum += float64(-(out[0] + out[1]) + out[2])

			if s.cfg.ForwardState {
				paintScores(st, top, step, c, out)
			}
		}
		s.hist[b] = sum
	}

	region := BestRegion(s.hist, s.cfg.WidthWeight)
	target := s.cfg.Policy.Target(region, Buckets)
	steer := float64(target) / float64(Buckets)
	markColumn(st, steer)

	hist := make([]float64, Buckets)
	copy(hist, s.hist)
	return Result{
		Steer:      steer,
		Confidence: s.cfg.FixedConfidence,
		Histogram:  hist,
		Region:     region,
		Target:     target,
	}, nil
}

// classify fills the input with the crop whose top-left corner is (top, left),
// each channel scaled to [-0.5, 0.5], and returns the three class scores.
func (s *Scanner) classify(top, left int) ([]float32, error) {
	x, _ := s.x.Float32s()
	for kr := 0; kr < CropSize; kr++ {
		row := s.rgb[(top+kr)*payload.FrameW+left:]
		for kc := 0; kc < CropSize; kc++ {
			px := row[kc]
			i := kr*CropSize*Channels + kc*Channels
			x[i+0] = float32(px.R)/255 - 0.5
			x[i+1] = float32(px.G)/255 - 0.5
			x[i+2] = float32(px.B)/255 - 0.5
		}
	}

	y, err := s.model.Forward(s.x)
	if err != nil {
		return nil, err
	}
	out, err := y.Float32s()
	if err != nil {
		return nil, err
	}
	if len(out) < Classes {
		return nil, fmt.Errorf("%w: %d scores, want %d", ErrModelShape, len(out), Classes)
	}
	return out[:Classes], nil
}

// Reference chroma directions for the none, hay and asphalt classes.
var classDirections = [Classes][2]float32{{1, 1}, {-1, 1}, {-1, -1}}

// paintScores writes the class mix as a chroma colour over step rows from top
// across the bucket starting at column left.
func paintScores(st *payload.State, top, step, left int, out []float32) {
	var v [2]float32
	for k, d := range classDirections {
		v[0] += out[k] * d[0]
		v[1] += out[k] * d[1]
	}
	c := payload.Chroma{
		Cr: clampByte(float64((v[0]+1)/2) * 255),
		Cb: clampByte(float64((v[1]+1)/2) * 255),
	}
	for row := top; row < top+step && row < payload.FrameH; row++ {
		for col := left; col < left+BucketWidth; col += 2 {
			st.Chroma[row*payload.ChromaW+col/2] = c
		}
	}
}

// markColumn blacks out the luma column at fraction f of the frame width.
func markColumn(st *payload.State, f float64) {
	col := int(f * payload.FrameW)
	if col >= payload.FrameW {
		col = payload.FrameW - 1
	}
	if col < 0 {
		col = 0
	}
	for row := 0; row < payload.FrameH; row++ {
		st.Luma[row*payload.FrameW+col] = 0
	}
}
