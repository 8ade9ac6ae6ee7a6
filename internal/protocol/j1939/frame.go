package j1939

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// HeaderLen is the fixed J1939 header shared by sent and captured frames.
	HeaderLen = 6
	// CaptureOffset is the timestamp (4) and echo flag (1) preceding a captured header.
	CaptureOffset = 5

	// PDU2Start is the first broadcast (group extension) PGN.
	PDU2Start uint32 = 0xF000
	// MaxPGN is the largest 18-bit parameter group number.
	MaxPGN uint32 = 0x3FFFF

	// DefaultPriority is the priority used by the test protocol (0x18 >> 2).
	DefaultPriority uint8 = 6
)

var ErrMalformedFrame = errors.New("j1939: malformed frame")

// Direction tells locally built frames apart from adapter captures.
type Direction uint8

const (
	Sent Direction = iota
	Captured
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "sent"
	case Captured:
		return "captured"
	default:
		return "unknown"
	}
}

// Frame is one J1939 message. Fields are derived from raw on access and never change
// after construction.
type Frame struct {
	raw    []byte
	dir    Direction
	weight float64
}

// Encode builds a Sent frame.
//
// Preconditions: priority <= 7, pgn <= MaxPGN. Broadcast PGNs (>= PDU2Start) carry no
// destination, so dest is forced to 0 for them. For PDU1 PGNs dest replaces the low
// byte of pgn.
func Encode(priority uint8, pgn uint32, dest, source uint8, payload []byte) Frame {
	ps := dest
	if pgn >= PDU2Start {
		dest = 0
		ps = byte(pgn)
	}
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = ps
	buf[1] = byte(pgn >> 8)
	buf[2] = byte(pgn>>16) & 0x03
	buf[3] = priority & 0x07
	buf[4] = source
	buf[5] = dest
	copy(buf[HeaderLen:], payload)
	return Frame{raw: buf, dir: Sent}
}

// DecodeSent wraps a locally built buffer. The buffer is copied.
func DecodeSent(raw []byte) (Frame, error) {
	if len(raw) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: sent frame needs %d bytes, got %d", ErrMalformedFrame, HeaderLen, len(raw))
	}
	return Frame{raw: clone(raw), dir: Sent}, nil
}

// DecodeCaptured wraps an adapter capture. timeStampWeight scales the device timestamp
// into milliseconds. The buffer is copied.
func DecodeCaptured(raw []byte, timeStampWeight float64) (Frame, error) {
	if len(raw) < CaptureOffset+HeaderLen {
		return Frame{}, fmt.Errorf("%w: captured frame needs %d bytes, got %d", ErrMalformedFrame, CaptureOffset+HeaderLen, len(raw))
	}
	return Frame{raw: clone(raw), dir: Captured, weight: timeStampWeight}, nil
}

// EncodeCapture lays out a capture the way an adapter delivers it. Drivers that
// synthesize captures use it.
func EncodeCapture(timestamp uint32, echo bool, header []byte) []byte {
	buf := make([]byte, CaptureOffset+len(header))
	binary.BigEndian.PutUint32(buf[0:4], timestamp)
	if echo {
		buf[4] = 1
	}
	copy(buf[CaptureOffset:], header)
	return buf
}

func (f Frame) Direction() Direction {
	return f.dir
}

// Raw returns the canonical wire bytes. Callers must not modify them.
func (f Frame) Raw() []byte {
	return f.raw
}

// Wire returns the header and payload without the capture prefix.
func (f Frame) Wire() []byte {
	return f.raw[f.offset():]
}

func (f Frame) IsZero() bool {
	return f.raw == nil
}

func (f Frame) offset() int {
	if f.dir == Captured {
		return CaptureOffset
	}
	return 0
}

func (f Frame) Priority() uint8 {
	return f.raw[f.offset()+3] & 0x07
}

// PGN returns the parameter group number. Destination specific (PDU1) values include the
// destination address in the low byte, the way J1939 tools display them.
func (f Frame) PGN() uint32 {
	o := f.offset()
	pgn := uint32(f.raw[o+2])<<16 | uint32(f.raw[o+1])<<8 | uint32(f.raw[o])
	if pgn < PDU2Start {
		pgn |= uint32(f.raw[o+5])
	}
	return pgn
}

func (f Frame) Source() uint8 {
	return f.raw[f.offset()+4]
}

// Destination is 0 for broadcast PGNs.
func (f Frame) Destination() uint8 {
	if f.PGN() >= PDU2Start {
		return 0
	}
	return f.raw[f.offset()+5]
}

func (f Frame) Payload() []byte {
	return f.raw[f.offset()+HeaderLen:]
}

func (f Frame) Len() int {
	return len(f.raw) - HeaderLen - f.offset()
}

// Echo reports whether this client transmitted the frame.
func (f Frame) Echo() bool {
	return f.dir == Sent || f.raw[4] != 0
}

// Time is the device timestamp in milliseconds; 0 for sent frames.
func (f Frame) Time() float64 {
	if f.dir == Sent {
		return 0
	}
	return float64(binary.BigEndian.Uint32(f.raw[0:4])) * 0.001 * f.weight
}

func (f Frame) Header() string {
	return fmt.Sprintf("%06X%02X", uint32(f.Priority())<<18|f.PGN(), f.Source())
}

func (f Frame) String() string {
	var tx string
	if f.Echo() {
		tx = " (TX)"
	}
	return fmt.Sprintf("%12.4f %s [%d] %s%s", f.Time(), f.Header(), f.Len(), HexBytes(f.Payload()), tx)
}

// HexBytes renders data as space separated upper-case hex.
func HexBytes(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
