package nn

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/avc/internal/tensor"
)

// Model is an ordered chain of layers. Forward reuses each layer's output
// buffer, so a Model must not run two inferences at once.
type Model struct {
	layers []*Layer
	input  tensor.Shape
}

// NewModel initialises layers in order, feeding each layer's output shape to
// the next. Shape errors surface here rather than during inference, and leave
// every layer uninitialised.
func NewModel(input *tensor.Tensor, layers ...*Layer) (*Model, error) {
	if len(layers) == 0 {
		return nil, errors.New("model has no layers")
	}
	x := input
	for i, l := range layers {
		if err := l.Init(x); err != nil {
			for _, done := range layers[:i] {
				done.A = nil
			}
			return nil, err
		}
		x = l.A
	}
	return &Model{layers: layers, input: input.Shape()}, nil
}

// Forward runs x through every layer and returns the last layer's output. The
// returned tensor belongs to the model and is overwritten by the next call.
func (m *Model) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !x.Shape().Equal(m.input) {
		return nil, fmt.Errorf("%w: model input %s, got %s", tensor.ErrShapeMismatch, m.input, x.Shape())
	}
	for _, l := range m.layers {
		if err := l.forward(x); err != nil {
			return nil, err
		}
		x = l.A
	}
	return x, nil
}

// InputShape returns the shape Forward expects.
func (m *Model) InputShape() tensor.Shape { return m.input }

// OutputShape returns the shape of the tensor Forward returns.
func (m *Model) OutputShape() tensor.Shape { return m.layers[len(m.layers)-1].A.Shape() }

// Layers returns the model's layers in forward order.
func (m *Model) Layers() []*Layer { return m.layers }

// LayerSpec describes one layer on disk. Weight files carry no shape, so In
// and Out must match what the files were written with.
type LayerSpec struct {
	Name       string
	In, Out    int
	Activation Activation
	Kind       tensor.Kind
}

// KernelPath returns <root>/<name>.kernel.
func KernelPath(root, name string) string { return filepath.Join(root, name+".kernel") }

// BiasPath returns <root>/<name>.bias.
func BiasPath(root, name string) string { return filepath.Join(root, name+".bias") }

// LoadLayer reads a layer's kernel [In, Out] and bias [1, Out] from root.
// Half precision files are widened to Float32.
func LoadLayer(root string, spec LayerSpec) (*Layer, error) {
	kind := spec.Kind
	if kind == 0 {
		kind = tensor.Float32
	}

	w, err := tensor.Load(KernelPath(root, spec.Name), kind, spec.In, spec.Out)
	if err != nil {
		return nil, fmt.Errorf("loading %s kernel: %w", spec.Name, err)
	}
	b, err := tensor.Load(BiasPath(root, spec.Name), kind, 1, spec.Out)
	if err != nil {
		return nil, fmt.Errorf("loading %s bias: %w", spec.Name, err)
	}
	if w, err = tensor.ToFloat32(w); err != nil {
		return nil, err
	}
	if b, err = tensor.ToFloat32(b); err != nil {
		return nil, err
	}

	return &Layer{
		Name:       spec.Name,
		Weight:     w,
		Bias:       b,
		Activation: spec.Activation,
	}, nil
}

// LoadModel loads every layer in specs from root and chains them onto input.
func LoadModel(root string, input *tensor.Tensor, specs []LayerSpec) (*Model, error) {
	layers := make([]*Layer, 0, len(specs))
	for _, spec := range specs {
		l, err := LoadLayer(root, spec)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return NewModel(input, layers...)
}

// ClassifierSpecs returns the two-layer colour classifier layout: a ReLU
// hidden layer named "dense" and a softmax output layer named "dense_1".
func ClassifierSpecs(inputs, hidden, classes int, kind tensor.Kind) []LayerSpec {
	return []LayerSpec{
		{Name: "dense", In: inputs, Out: hidden, Activation: ReLU, Kind: kind},
		{Name: "dense_1", In: hidden, Out: classes, Activation: Softmax, Kind: kind},
	}
}
