package payload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/avc/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func sampleState() State {
	var s State
	s.RotRate = [3]int16{-1, 2, -32768}
	s.Acc = [3]int16{100, -200, 32767}
	s.Vel = -7
	s.Distance = 0xDEADBEEF
	for i := range s.Luma {
		s.Luma[i] = uint8(i * 7)
	}
	for i := range s.Chroma {
		s.Chroma[i] = Chroma{Cb: uint8(i), Cr: uint8(255 - i%256)}
	}
	return s
}

func encodeFrame(t *testing.T, f *Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteFrame(f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	return buf.Bytes()
}

func TestSizes(t *testing.T) {
	if StateSize != 38420 {
		t.Errorf("StateSize = %d, want 38420", StateSize)
	}
	if PairSize != 38422 {
		t.Errorf("PairSize = %d, want 38422", PairSize)
	}
}

func TestStateLayout(t *testing.T) {
	s := sampleState()
	b := MarshalState(&s)

	if got := int16(binary.LittleEndian.Uint16(b[4:])); got != -32768 {
		t.Errorf("rot_rate[2] = %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(b[10:])); got != 32767 {
		t.Errorf("acc[2] = %d", got)
	}
	if got := int8(b[12]); got != -7 {
		t.Errorf("vel = %d", got)
	}
	if !bytes.Equal(b[13:16], []byte{0, 0, 0}) {
		t.Errorf("padding = %v, want zeros", b[13:16])
	}
	if got := binary.LittleEndian.Uint32(b[16:]); got != 0xDEADBEEF {
		t.Errorf("distance = %x", got)
	}
	if b[20+5] != s.Luma[5] {
		t.Errorf("luma[5] = %d, want %d", b[25], s.Luma[5])
	}
	if b[19220+2*3] != s.Chroma[3].Cb || b[19220+2*3+1] != s.Chroma[3].Cr {
		t.Errorf("chroma[3] = %v, want %+v", b[19226:19228], s.Chroma[3])
	}

	var back State
	if err := UnmarshalState(b, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s, back); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if err := UnmarshalState(b[1:], &back); !errors.Is(err, ErrProtocol) {
		t.Errorf("short state body: got %v, want ErrProtocol", err)
	}
}

func TestPairRoundTrip(t *testing.T) {
	want := &Frame{Type: TypePair, State: sampleState(), Action: Action{Throttle: 140, Steering: 12}}
	raw := encodeFrame(t, want)

	if len(raw) != HeaderSize+PairSize {
		t.Fatalf("frame is %d bytes, want %d", len(raw), HeaderSize+PairSize)
	}

	got := new(Frame)
	if err := NewReader(bytes.NewReader(raw)).ReadFrame(got, TypeState|TypePair); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	// Re-encoding reproduces the bytes exactly.
	if again := encodeFrame(t, got); !bytes.Equal(raw, again) {
		t.Error("re-encoded frame differs from original bytes")
	}
}

func TestReadFrame_PartialReads(t *testing.T) {
	want := &Frame{Type: TypeState, State: sampleState()}
	raw := encodeFrame(t, want)

	got := new(Frame)
	r := NewReader(iotest.OneByteReader(bytes.NewReader(raw)))
	if err := r.ReadFrame(got, TypeState); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFrame_Sequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < 3; i++ {
		if err := w.WriteFrame(&Frame{Type: TypeAction, Action: Action{Throttle: uint8(i), Steering: uint8(10 * i)}}); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(&buf)
	var f Frame
	for i := 0; i < 3; i++ {
		if err := r.ReadFrame(&f, TypeAction); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Action != (Action{Throttle: uint8(i), Steering: uint8(10 * i)}) {
			t.Errorf("frame %d action = %+v", i, f.Action)
		}
	}
	if err := r.ReadFrame(&f, TypeAction); !errors.Is(err, ErrEOF) {
		t.Errorf("after last frame: got %v, want ErrEOF", err)
	}
}

func TestReadFrame_BadMagicLeavesBody(t *testing.T) {
	raw := encodeFrame(t, &Frame{Type: TypePair, State: sampleState()})
	raw[0] ^= 0xFF

	br := bytes.NewReader(raw)
	err := NewReader(br).ReadFrame(new(Frame), TypeState|TypePair)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
	if br.Len() != PairSize {
		t.Errorf("%d body bytes left unread, want %d", br.Len(), PairSize)
	}
}

func TestReadFrame_IncompatibleType(t *testing.T) {
	raw := encodeFrame(t, &Frame{Type: TypeAction, Action: NeutralAction()})

	br := bytes.NewReader(raw)
	err := NewReader(br).ReadFrame(new(Frame), TypeState|TypePair)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("got %v, want ErrProtocol", err)
	}
	if br.Len() != ActionSize {
		t.Errorf("%d body bytes left unread, want %d", br.Len(), ActionSize)
	}
}

func TestReadFrame_MultiBitHeader(t *testing.T) {
	raw := make([]byte, HeaderSize)
	encodeHeader(raw, TypeState|TypePair)

	err := NewReader(bytes.NewReader(raw)).ReadFrame(new(Frame), TypeState)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("got %v, want ErrProtocol", err)
	}
}

func TestReadFrame_EndOfStream(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"partial header", []byte{0xE5, 0x17}},
		{"truncated body", func() []byte {
			raw := make([]byte, HeaderSize+100)
			encodeHeader(raw, TypeState)
			return raw
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewReader(bytes.NewReader(tt.raw)).ReadFrame(new(Frame), TypeState)
			if !errors.Is(err, ErrEOF) {
				t.Errorf("got %v, want ErrEOF", err)
			}
			if got := EndOfStream(err); got != (tt.raw == nil) {
				t.Errorf("EndOfStream(%v) = %v", err, got)
			}
		})
	}

	// A header with no body at all is still a cut-short frame.
	raw := make([]byte, HeaderSize)
	encodeHeader(raw, TypeAction)
	err := NewReader(bytes.NewReader(raw)).ReadFrame(new(Frame), TypeAction)
	if !errors.Is(err, ErrEOF) || EndOfStream(err) {
		t.Errorf("headerless body: got %v", err)
	}
}

func TestReadFrame_ReadError(t *testing.T) {
	boom := errors.New("boom")
	err := NewReader(iotest.ErrReader(boom)).ReadFrame(new(Frame), TypeState)
	if !errors.Is(err, ErrIO) || !errors.Is(err, boom) {
		t.Errorf("got %v, want ErrIO wrapping boom", err)
	}
}

type shortWriter struct {
	writes int
	failAt int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == w.failAt {
		return len(p) / 2, nil
	}
	return len(p), nil
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriteFrame_ShortWrite(t *testing.T) {
	for _, failAt := range []int{1, 2} {
		w := &shortWriter{failAt: failAt}
		err := NewWriter(w).WriteFrame(&Frame{Type: TypePair})
		if !errors.Is(err, ErrShortWrite) || !errors.Is(err, io.ErrShortWrite) {
			t.Errorf("fail at write %d: got %v, want ErrShortWrite", failAt, err)
		}
	}

	err := NewWriter(errWriter{io.ErrClosedPipe}).WriteFrame(&Frame{Type: TypeAction})
	if !errors.Is(err, ErrShortWrite) || !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("got %v, want ErrShortWrite wrapping ErrClosedPipe", err)
	}
}

func TestWriteFrame_UnknownType(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).WriteFrame(&Frame{Type: TypeState | TypeAction})
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("got %v, want ErrProtocol", err)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes written for an invalid frame", buf.Len())
	}
}

func TestTypeString(t *testing.T) {
	for typ, want := range map[Type]string{
		TypeState:              "STATE",
		TypeState | TypePair:   "STATE|PAIR",
		TypeAction | Type(0x8): "ACTION|0x8",
		0:                      "NONE",
	} {
		if got := typ.String(); got != want {
			t.Errorf("Type(%d).String() = %q, want %q", uint32(typ), got, want)
		}
	}
}
