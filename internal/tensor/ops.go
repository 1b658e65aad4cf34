package tensor

import (
	"fmt"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// ElementFunc maps one element to another.
type ElementFunc func(float32) float32

// Apply writes fn(src[i]) to dst[i] for every element. dst and src may be the
// same tensor.
func Apply(dst, src *Tensor, fn ElementFunc) error {
	d, err := dst.Float32s()
	if err != nil {
		return fmt.Errorf("apply dst: %w", err)
	}
	s, err := src.Float32s()
	if err != nil {
		return fmt.Errorf("apply src: %w", err)
	}
	if len(d) != len(s) {
		return fmt.Errorf("%w: apply %d elements into %d", ErrShapeMismatch, len(s), len(d))
	}
	for i, v := range s {
		d[i] = fn(v)
	}
	return nil
}

// MatMul computes the dense product dst = a x b for a:[m,k], b:[k,n] and a
// pre-shaped dst:[m,n]. dst must not share storage with a or b.
func MatMul(dst, a, b *Tensor) error {
	as, bs, ds := a.Shape(), b.Shape(), dst.Shape()
	if as.Rank() != 2 || bs.Rank() != 2 || ds.Rank() != 2 {
		return fmt.Errorf("%w: matmul needs rank 2 operands, got %s x %s -> %s", ErrShapeMismatch, as, bs, ds)
	}
	m, k, n := as.Dim(0), as.Dim(1), bs.Dim(1)
	if bs.Dim(0) != k {
		return fmt.Errorf("%w: matmul inner dims %s x %s", ErrShapeMismatch, as, bs)
	}
	if ds.Dim(0) != m || ds.Dim(1) != n {
		return fmt.Errorf("%w: matmul %s x %s into %s", ErrShapeMismatch, as, bs, ds)
	}
	if dst == a || dst == b {
		return ErrAliased
	}

	ad, err := a.Float32s()
	if err != nil {
		return fmt.Errorf("matmul a: %w", err)
	}
	bd, err := b.Float32s()
	if err != nil {
		return fmt.Errorf("matmul b: %w", err)
	}
	dd, err := dst.Float32s()
	if err != nil {
		return fmt.Errorf("matmul dst: %w", err)
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: ad},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: bd},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: dd},
	)
	return nil
}

// AddRowVector adds the [1,n] tensor row to every row of the [m,n] tensor dst.
func AddRowVector(dst, row *Tensor) error {
	ds, rs := dst.Shape(), row.Shape()
	if ds.Rank() != 2 || rs.Rank() != 2 || rs.Dim(0) != 1 || rs.Dim(1) != ds.Dim(1) {
		return fmt.Errorf("%w: broadcast %s over %s", ErrShapeMismatch, rs, ds)
	}
	d, err := dst.Float32s()
	if err != nil {
		return err
	}
	r, err := row.Float32s()
	if err != nil {
		return err
	}
	cols := ds.Dim(1)
	for off := 0; off < len(d); off += cols {
		out := d[off : off+cols]
		for j, v := range r {
			out[j] += v
		}
	}
	return nil
}

// Convert copies src into dst converting between element kinds. Shapes must
// hold the same number of elements.
func Convert(dst, src *Tensor) error {
	if dst.Len() != src.Len() {
		return fmt.Errorf("%w: convert %s into %s", ErrShapeMismatch, src, dst)
	}
	switch {
	case dst.kind == src.kind:
		copy(dst.f32, src.f32)
		copy(dst.f16, src.f16)
	case dst.kind == Float32 && src.kind == Float16:
		for i, bits := range src.f16 {
			dst.f32[i] = float16.Frombits(bits).Float32()
		}
	case dst.kind == Float16 && src.kind == Float32:
		for i, v := range src.f32 {
			dst.f16[i] = float16.Fromfloat32(v).Bits()
		}
	default:
		return fmt.Errorf("%w: convert %s to %s", ErrKindMismatch, src.kind, dst.kind)
	}
	return nil
}

// ToFloat32 returns t itself when it is already Float32, otherwise a converted
// copy of the same shape.
func ToFloat32(t *Tensor) (*Tensor, error) {
	if t.kind == Float32 {
		return t, nil
	}
	out, err := NewWithShape(Float32, t.shape)
	if err != nil {
		return nil, err
	}
	if err := Convert(out, t); err != nil {
		return nil, err
	}
	return out, nil
}
