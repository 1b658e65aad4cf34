// Package pose holds the vehicle position and heading written by the pose
// estimator and read by the controller.
package pose

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/avc/internal/monitoring"
)

// RecordSize is the encoded size of one pose: position then heading, each as
// three little-endian float32.
const RecordSize = 24

// Pose is a position and heading in the route frame.
type Pose struct {
	Position r3.Vec
	Heading  r3.Vec
}

// Shared is the pose record shared between the estimator and the control
// loop. Readers take a copy with Snapshot and never hold the lock across I/O.
type Shared struct {
	mu      sync.RWMutex
	pose    Pose
	updates uint64
}

// Store replaces the current pose.
func (s *Shared) Store(p Pose) {
	s.mu.Lock()
	s.pose = p
	s.updates++
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the current pose.
func (s *Shared) Snapshot() Pose {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose
}

// Updates returns how many times Store has been called.
func (s *Shared) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// Decode reads one pose record from b.
func Decode(b []byte) Pose {
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return Pose{
		Position: r3.Vec{X: f(0), Y: f(1), Z: f(2)},
		Heading:  r3.Vec{X: f(3), Y: f(4), Z: f(5)},
	}
}

// Encode writes p into b[:RecordSize].
func Encode(b []byte, p Pose) {
	for i, v := range []float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Heading.X, p.Heading.Y, p.Heading.Z,
	} {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
	}
}

// Feed reads pose records from r and stores each into s until r is exhausted
// or ctx is cancelled. A clean end of stream returns nil. Cancellation is only
// observed between records.
func Feed(ctx context.Context, r io.Reader, s *Shared) error {
	var buf [RecordSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				monitoring.Logf("pose feed closed after %d updates", s.Updates())
				return nil
			}
			return fmt.Errorf("reading pose record: %w", err)
		}
		s.Store(Decode(buf[:]))
	}
}
