// Package payload implements the framed binary records exchanged between
// pipeline stages over a single-direction byte stream.
//
// A frame is an 8 byte little-endian header followed by a body whose size is
// fixed by the header's type tag:
//
//	offset  size  field
//	0       4     magic (0xAC5A17E5)
//	4       4     type (STATE=1, ACTION=2, PAIR=4)
//	8       n     body
//
// STATE bodies keep the packed layout of the vehicle state record used by the
// other stages, including the three padding bytes after the velocity field.
package payload

import (
	"fmt"
	"strings"
)

// Magic identifies the start of every frame.
const Magic uint32 = 0xAC5A17E5

// Frame geometry shared by every stage.
const (
	FrameW       = 160
	FrameH       = 120
	ChromaW      = FrameW / 2
	LumaPixels   = FrameW * FrameH
	ChromaPixels = ChromaW * FrameH
)

// Record sizes in bytes.
const (
	HeaderSize = 8
	StateSize  = offChroma + ChromaPixels*2 // 38420
	ActionSize = 2
	PairSize   = StateSize + ActionSize
)

// Byte offsets of the STATE record fields.
const (
	offRotRate  = 0  // 3 x int16
	offAcc      = 6  // 3 x int16
	offVel      = 12 // int8, followed by 3 bytes padding
	offDistance = 16 // uint32
	offLuma     = 20
	offChroma   = offLuma + LumaPixels // {cb, cr} pairs
)

// Neutral is the action value that neither steers nor drives.
const Neutral uint8 = 117

// Type is a bitmask of record kinds. Readers accept any frame whose type
// shares a bit with the expected mask.
type Type uint32

const (
	TypeState Type = 1 << iota
	TypeAction
	TypePair
)

// BodySize returns the body length for a single record kind.
func (t Type) BodySize() (int, error) {
	switch t {
	case TypeState:
		return StateSize, nil
	case TypeAction:
		return ActionSize, nil
	case TypePair:
		return PairSize, nil
	default:
		return 0, fmt.Errorf("%w: no body size for type %s", ErrProtocol, t)
	}
}

func (t Type) String() string {
	if t == 0 {
		return "NONE"
	}
	var parts []string
	for _, k := range []struct {
		bit  Type
		name string
	}{{TypeState, "STATE"}, {TypeAction, "ACTION"}, {TypePair, "PAIR"}} {
		if t&k.bit != 0 {
			parts = append(parts, k.name)
			t &^= k.bit
		}
	}
	if t != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(t)))
	}
	return strings.Join(parts, "|")
}

// Chroma is one half-resolution chroma sample shared by two luma columns.
type Chroma struct {
	Cb, Cr uint8
}

// State is the vehicle and camera state produced once per tick.
type State struct {
	RotRate  [3]int16
	Acc      [3]int16
	Vel      int8
	Distance uint32
	Luma     [LumaPixels]uint8
	Chroma   [ChromaPixels]Chroma
}

// Action is the drive command for one tick.
type Action struct {
	Throttle uint8
	Steering uint8
}

// NeutralAction returns the command that leaves the vehicle idle and straight.
func NeutralAction() Action {
	return Action{Throttle: Neutral, Steering: Neutral}
}

// Frame is one decoded record. State is meaningful for STATE and PAIR frames,
// Action for ACTION and PAIR frames.
type Frame struct {
	Type   Type
	State  State
	Action Action
}
