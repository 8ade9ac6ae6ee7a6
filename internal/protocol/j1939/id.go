package j1939

import "fmt"

const pdu1FormatLimit = 240

// CANID packs a wire header (6 bytes, no capture prefix) into a 29-bit identifier.
func CANID(header []byte) (uint32, error) {
	if len(header) < HeaderLen {
		return 0, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformedFrame, HeaderLen, len(header))
	}
	pf := header[1]
	ps := header[0]
	if pf < pdu1FormatLimit {
		ps = header[5]
	}
	return uint32(header[3]&0x07)<<26 |
		uint32(header[2]&0x03)<<24 |
		uint32(pf)<<16 |
		uint32(ps)<<8 |
		uint32(header[4]), nil
}

// HeaderFromCANID is the inverse of CANID. For destination specific formats the PS byte
// moves into the destination slot and the group extension is left zero.
func HeaderFromCANID(id uint32) []byte {
	pf := byte(id >> 16)
	ps := byte(id >> 8)
	h := []byte{ps, pf, byte(id>>24) & 0x03, byte(id>>26) & 0x07, byte(id), 0}
	if pf < pdu1FormatLimit {
		h[0] = 0
		h[5] = ps
	}
	return h
}
