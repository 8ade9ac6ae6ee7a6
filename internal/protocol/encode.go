package protocol

import "encoding/binary"

// ControlPayload lays out cmd, three zero bytes and a big-endian parameter.
func ControlPayload(cmd Command, param uint32) []byte {
	buf := make([]byte, PayloadLen)
	buf[0] = byte(cmd)
	binary.BigEndian.PutUint32(buf[4:8], param)
	return buf
}

// PingPayload carries the iteration counter big-endian in the tail of the payload.
func PingPayload(counter uint32) []byte {
	return ControlPayload(CmdPing, counter)
}

// DataPayload carries one bulk transfer sequence number.
func DataPayload(seq uint32) []byte {
	return ControlPayload(CmdData, seq)
}
