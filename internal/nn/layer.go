// Package nn runs forward inference through a fixed stack of fully connected
// layers.
package nn

import (
	"errors"
	"fmt"

	"github.com/banshee-data/avc/internal/tensor"
)

var (
	ErrNotInitialised     = errors.New("layer not initialised")
	ErrAlreadyInitialised = errors.New("layer already initialised")
)

// Layer is one fully connected stage: A = activation(x·Weight + Bias).
type Layer struct {
	Name       string
	Weight     *tensor.Tensor // [in, out]
	Bias       *tensor.Tensor // [1, out]
	Activation Activation

	// A is the layer output, allocated by Init and overwritten by every
	// forward pass.
	A *tensor.Tensor
}

// Init derives the output shape [input rows, out] from input and the weight
// tensor and allocates A. It must run exactly once, in forward order.
func (l *Layer) Init(input *tensor.Tensor) error {
	if l.A != nil {
		return fmt.Errorf("%s: %w", l.Name, ErrAlreadyInitialised)
	}
	if l.Weight == nil || l.Bias == nil {
		return fmt.Errorf("%s: missing weight or bias", l.Name)
	}

	ws, bs, is := l.Weight.Shape(), l.Bias.Shape(), input.Shape()
	if ws.Rank() != 2 {
		return fmt.Errorf("%s: %w: weight %s is not rank 2", l.Name, tensor.ErrShapeMismatch, ws)
	}
	if is.Rank() != 2 || is.Dim(1) != ws.Dim(0) {
		return fmt.Errorf("%s: %w: input %s does not feed weight %s", l.Name, tensor.ErrShapeMismatch, is, ws)
	}
	if bs.Rank() != 2 || bs.Dim(0) != 1 || bs.Dim(1) != ws.Dim(1) {
		return fmt.Errorf("%s: %w: bias %s for %d outputs", l.Name, tensor.ErrShapeMismatch, bs, ws.Dim(1))
	}

	a, err := tensor.New(tensor.Float32, is.Dim(0), ws.Dim(1))
	if err != nil {
		return fmt.Errorf("%s: %w", l.Name, err)
	}
	l.A = a
	return nil
}

func (l *Layer) forward(x *tensor.Tensor) error {
	if l.A == nil {
		return fmt.Errorf("%s: %w", l.Name, ErrNotInitialised)
	}
	if err := tensor.MatMul(l.A, x, l.Weight); err != nil {
		return fmt.Errorf("%s: %w", l.Name, err)
	}
	if err := tensor.AddRowVector(l.A, l.Bias); err != nil {
		return fmt.Errorf("%s: %w", l.Name, err)
	}
	if err := l.Activation.Apply(l.A); err != nil {
		return fmt.Errorf("%s %s: %w", l.Name, l.Activation, err)
	}
	return nil
}
