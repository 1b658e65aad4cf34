// Package tensor provides the small, shape-checked numeric buffers used by the
// onboard inference model.
//
// Storage is a tagged container: a tensor holds exactly one typed slice chosen
// by its Kind, and typed accessors refuse to hand out a slice of the wrong
// kind. Nothing in this package reinterprets raw bytes across kinds.
package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// MaxRank is the largest number of axes a tensor may have.
const MaxRank = 4

var (
	ErrInvalidShape  = errors.New("invalid tensor shape")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrKindMismatch  = errors.New("tensor element kind mismatch")
	ErrAliased       = errors.New("tensor destination aliases an operand")
	ErrShortRead     = errors.New("tensor data truncated")
	ErrTrailingData  = errors.New("tensor data longer than declared shape")
)

// Kind selects the stored numeric representation of a tensor's elements.
type Kind uint8

const (
	// Float32 is IEEE 754 single precision, the kind all arithmetic runs in.
	Float32 Kind = iota + 1
	// Float16 is IEEE 754 binary16. It is a storage-only kind: weights may be
	// kept in half precision and converted with Convert before use.
	Float16
)

// Width returns the size in bytes of one element.
func (k Kind) Width() int {
	switch k {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case Float32:
		return "f32"
	case Float16:
		return "f16"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps "f32"/"f16" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "f32", "float32":
		return Float32, nil
	case "f16", "float16":
		return Float16, nil
	default:
		return 0, fmt.Errorf("unknown element kind %q", s)
	}
}

// Shape is a fixed-capacity list of axis extents.
type Shape struct {
	dims [MaxRank]int
	rank int
}

// NewShape validates dims and returns the corresponding Shape. Every extent
// must be positive and there must be between 1 and MaxRank of them.
func NewShape(dims ...int) (Shape, error) {
	var s Shape
	if len(dims) == 0 || len(dims) > MaxRank {
		return s, fmt.Errorf("%w: rank %d outside [1, %d]", ErrInvalidShape, len(dims), MaxRank)
	}
	for i, d := range dims {
		if d <= 0 {
			return s, fmt.Errorf("%w: dim %d is %d", ErrInvalidShape, i, d)
		}
		s.dims[i] = d
	}
	s.rank = len(dims)
	return s, nil
}

// Rank returns the number of valid axes.
func (s Shape) Rank() int { return s.rank }

// Dim returns the extent of axis i, or 0 if i is not a valid axis.
func (s Shape) Dim(i int) int {
	if i < 0 || i >= s.rank {
		return 0
	}
	return s.dims[i]
}

// Dims returns a copy of the valid extents.
func (s Shape) Dims() []int {
	out := make([]int, s.rank)
	copy(out, s.dims[:s.rank])
	return out
}

// NumElements returns the product of the valid extents.
func (s Shape) NumElements() int {
	if s.rank == 0 {
		return 0
	}
	n := 1
	for _, d := range s.dims[:s.rank] {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same rank and extents.
func (s Shape) Equal(o Shape) bool {
	return s == o
}

func (s Shape) String() string {
	parts := make([]string, s.rank)
	for i, d := range s.dims[:s.rank] {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Tensor owns a zero-initialised buffer of NumElements elements of one Kind.
type Tensor struct {
	kind  Kind
	shape Shape
	f32   []float32
	f16   []uint16
}

// New allocates a zero-filled tensor.
func New(kind Kind, dims ...int) (*Tensor, error) {
	shape, err := NewShape(dims...)
	if err != nil {
		return nil, err
	}
	return NewWithShape(kind, shape)
}

// NewWithShape allocates a zero-filled tensor of an already validated shape.
func NewWithShape(kind Kind, shape Shape) (*Tensor, error) {
	n := shape.NumElements()
	if n <= 0 {
		return nil, fmt.Errorf("%w: %s has no elements", ErrInvalidShape, shape)
	}
	t := &Tensor{kind: kind, shape: shape}
	switch kind {
	case Float32:
		t.f32 = make([]float32, n)
	case Float16:
		t.f16 = make([]uint16, n)
	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrKindMismatch, kind)
	}
	return t, nil
}

// FromFloat32s copies data into a new Float32 tensor of the given shape.
func FromFloat32s(data []float32, dims ...int) (*Tensor, error) {
	t, err := New(Float32, dims...)
	if err != nil {
		return nil, err
	}
	if len(data) != len(t.f32) {
		return nil, fmt.Errorf("%w: %d values for shape %s", ErrShapeMismatch, len(data), t.shape)
	}
	copy(t.f32, data)
	return t, nil
}

// Kind returns the element kind.
func (t *Tensor) Kind() Kind { return t.kind }

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// Len returns the number of elements held, which always equals
// Shape().NumElements().
func (t *Tensor) Len() int {
	switch t.kind {
	case Float32:
		return len(t.f32)
	case Float16:
		return len(t.f16)
	}
	return 0
}

// ByteSize returns Len() * Kind().Width().
func (t *Tensor) ByteSize() int { return t.Len() * t.kind.Width() }

// Float32s returns the backing slice of a Float32 tensor. Writes through the
// slice are visible to the tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.kind != Float32 {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrKindMismatch, Float32, t.kind)
	}
	return t.f32, nil
}

// Float16s returns the raw binary16 bit patterns of a Float16 tensor.
func (t *Tensor) Float16s() ([]uint16, error) {
	if t.kind != Float16 {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrKindMismatch, Float16, t.kind)
	}
	return t.f16, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("tensor(%s%s)", t.kind, t.shape)
}
