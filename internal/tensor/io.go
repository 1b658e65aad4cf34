package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Weight files are flat little-endian element arrays with no header. The
// caller supplies the shape.

// Read decodes exactly NumElements elements of kind from r.
func Read(r io.Reader, kind Kind, dims ...int) (*Tensor, error) {
	t, err := New(kind, dims...)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, t.ByteSize())
	if n, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes for %s", ErrShortRead, n, len(buf), t)
		}
		return nil, err
	}
	t.decode(buf)
	return t, nil
}

// Load reads a weight file whose size must match the declared shape exactly.
// A missing file yields an error satisfying errors.Is(err, os.ErrNotExist).
func Load(path string, kind Kind, dims ...int) (*Tensor, error) {
	cleanPath := filepath.Clean(path)
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open tensor file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat tensor file: %w", err)
	}

	t, err := Read(f, kind, dims...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	if info.Size() > int64(t.ByteSize()) {
		return nil, fmt.Errorf("%s: %w: %d bytes, shape %s needs %d",
			cleanPath, ErrTrailingData, info.Size(), t.shape, t.ByteSize())
	}
	return t, nil
}

// Write encodes t as a flat little-endian element array.
func Write(w io.Writer, t *Tensor) error {
	buf := make([]byte, t.ByteSize())
	t.encode(buf)
	_, err := w.Write(buf)
	return err
}

// Save writes t to path, creating or truncating the file.
func Save(path string, t *Tensor) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create tensor file: %w", err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return fmt.Errorf("write tensor file: %w", err)
	}
	return f.Close()
}

func (t *Tensor) decode(buf []byte) {
	switch t.kind {
	case Float32:
		for i := range t.f32 {
			t.f32[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case Float16:
		for i := range t.f16 {
			t.f16[i] = binary.LittleEndian.Uint16(buf[i*2:])
		}
	}
}

func (t *Tensor) encode(buf []byte) {
	switch t.kind {
	case Float32:
		for i, v := range t.f32 {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
	case Float16:
		for i, v := range t.f16 {
			binary.LittleEndian.PutUint16(buf[i*2:], v)
		}
	}
}
