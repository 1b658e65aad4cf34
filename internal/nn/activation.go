package nn

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/avc/internal/tensor"
)

type activationKind int

const (
	kindIdentity activationKind = iota
	kindReLU
	kindSoftmax
	kindSigmoid
	kindSquash
	kindCustom
)

// Activation is a closed set of output non-linearities. The zero value is
// Identity. User functions go through CustomActivation.
type Activation struct {
	kind activationKind
	name string
	fn   tensor.ElementFunc
}

var (
	Identity = Activation{kind: kindIdentity, name: "identity"}
	ReLU     = Activation{kind: kindReLU, name: "relu"}
	// Softmax normalises each row of a rank-2 tensor. The row maximum is
	// subtracted before exponentiation so large logits do not overflow.
	Softmax = Activation{kind: kindSoftmax, name: "softmax"}
	Sigmoid = Activation{kind: kindSigmoid, name: "sigmoid"}
	// Squash is 1 - x²/(1+x²), a saturating bump used by test fixtures.
	Squash = Activation{kind: kindSquash, name: "squash"}
)

// CustomActivation wraps an element-wise function as an activation.
func CustomActivation(name string, fn tensor.ElementFunc) Activation {
	return Activation{kind: kindCustom, name: name, fn: fn}
}

// ParseActivation maps a configuration name to one of the built-in activations.
func ParseActivation(s string) (Activation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "identity", "linear":
		return Identity, nil
	case "relu":
		return ReLU, nil
	case "softmax":
		return Softmax, nil
	case "sigmoid", "logistic":
		return Sigmoid, nil
	case "squash":
		return Squash, nil
	default:
		return Activation{}, fmt.Errorf("unknown activation %q", s)
	}
}

func (a Activation) String() string {
	if a.name == "" {
		return "identity"
	}
	return a.name
}

// Apply runs the activation in place over t.
func (a Activation) Apply(t *tensor.Tensor) error {
	switch a.kind {
	case kindIdentity:
		return nil
	case kindReLU:
		return tensor.Apply(t, t, relu)
	case kindSigmoid:
		return tensor.Apply(t, t, sigmoid)
	case kindSquash:
		return tensor.Apply(t, t, squash)
	case kindSoftmax:
		return softmaxRows(t)
	case kindCustom:
		if a.fn == nil {
			return fmt.Errorf("activation %q has no function", a.name)
		}
		return tensor.Apply(t, t, a.fn)
	default:
		return fmt.Errorf("unknown activation kind %d", a.kind)
	}
}

func relu(v float32) float32 {
	if v < 0 {
		return 0
	}
	return v
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

func squash(v float32) float32 {
	v2 := v * v
	return 1 - v2/(1+v2)
}

func softmaxRows(t *tensor.Tensor) error {
	data, err := t.Float32s()
	if err != nil {
		return err
	}
	shape := t.Shape()
	cols := shape.Dim(shape.Rank() - 1)
	for off := 0; off < len(data); off += cols {
		row := data[off : off+cols]

		hi := row[0]
		for _, v := range row[1:] {
			if v > hi {
				hi = v
			}
		}

		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v) - float64(hi))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
	return nil
}
