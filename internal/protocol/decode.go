package protocol

import (
	"encoding/binary"
	"fmt"
)

// CommandOf returns the command tag without validating the rest of the payload.
func CommandOf(payload []byte) Command {
	if len(payload) == 0 {
		return CmdUnknown
	}
	switch c := Command(payload[0]); c {
	case CmdPing, CmdRxRequest, CmdTxRequest, CmdData, CmdExit:
		return c
	default:
		return CmdUnknown
	}
}

// ParseControl decodes a full control payload.
func ParseControl(payload []byte) (Control, error) {
	if len(payload) == 0 {
		return Control{}, ErrEmptyPayload
	}
	if len(payload) < PayloadLen {
		return Control{}, fmt.Errorf("%w: %d bytes", ErrShortPayload, len(payload))
	}
	return Control{
		Command: CommandOf(payload),
		Param:   binary.BigEndian.Uint32(payload[4:8]),
	}, nil
}
