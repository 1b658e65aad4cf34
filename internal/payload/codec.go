package payload

import (
	"encoding/binary"
	"fmt"
)

func encodeHeader(b []byte, t Type) {
	binary.LittleEndian.PutUint32(b[0:4], Magic)
	binary.LittleEndian.PutUint32(b[4:8], uint32(t))
}

func decodeHeader(b []byte) (magic uint32, t Type) {
	return binary.LittleEndian.Uint32(b[0:4]), Type(binary.LittleEndian.Uint32(b[4:8]))
}

// encodeState writes s into b[:StateSize]. Padding bytes are zeroed.
func encodeState(b []byte, s *State) {
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint16(b[offRotRate+2*i:], uint16(s.RotRate[i]))
		binary.LittleEndian.PutUint16(b[offAcc+2*i:], uint16(s.Acc[i]))
	}
	b[offVel] = byte(s.Vel)
	b[offVel+1], b[offVel+2], b[offVel+3] = 0, 0, 0
	binary.LittleEndian.PutUint32(b[offDistance:], s.Distance)
	copy(b[offLuma:offChroma], s.Luma[:])
	for i, c := range s.Chroma {
		b[offChroma+2*i] = c.Cb
		b[offChroma+2*i+1] = c.Cr
	}
}

func decodeState(b []byte, s *State) {
	for i := 0; i < 3; i++ {
		s.RotRate[i] = int16(binary.LittleEndian.Uint16(b[offRotRate+2*i:]))
		s.Acc[i] = int16(binary.LittleEndian.Uint16(b[offAcc+2*i:]))
	}
	s.Vel = int8(b[offVel])
	s.Distance = binary.LittleEndian.Uint32(b[offDistance:])
	copy(s.Luma[:], b[offLuma:offChroma])
	for i := range s.Chroma {
		s.Chroma[i] = Chroma{Cb: b[offChroma+2*i], Cr: b[offChroma+2*i+1]}
	}
}

func encodeAction(b []byte, a Action) {
	b[0], b[1] = a.Throttle, a.Steering
}

func decodeAction(b []byte) Action {
	return Action{Throttle: b[0], Steering: b[1]}
}

// encodeBody writes the body for f.Type into b, which must be BodySize long.
func encodeBody(b []byte, f *Frame) {
	switch f.Type {
	case TypeState:
		encodeState(b, &f.State)
	case TypeAction:
		encodeAction(b, f.Action)
	case TypePair:
		encodeState(b[:StateSize], &f.State)
		encodeAction(b[StateSize:], f.Action)
	}
}

func decodeBody(b []byte, f *Frame) {
	switch f.Type {
	case TypeState:
		decodeState(b, &f.State)
	case TypeAction:
		f.Action = decodeAction(b)
	case TypePair:
		decodeState(b[:StateSize], &f.State)
		f.Action = decodeAction(b[StateSize:])
	}
}

// MarshalState returns the packed STATE body for s.
func MarshalState(s *State) []byte {
	b := make([]byte, StateSize)
	encodeState(b, s)
	return b
}

// UnmarshalState decodes a packed STATE body into s.
func UnmarshalState(b []byte, s *State) error {
	if len(b) != StateSize {
		return fmt.Errorf("%w: state body is %d bytes, want %d", ErrProtocol, len(b), StateSize)
	}
	decodeState(b, s)
	return nil
}
