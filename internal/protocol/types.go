package protocol

import "fmt"

// Command is the first payload byte of every test protocol frame.
type Command uint8

const (
	CmdUnknown   Command = 0
	CmdPing      Command = 1
	CmdRxRequest Command = 2
	CmdTxRequest Command = 3
	CmdData      Command = 4
	CmdExit      Command = 5
)

// PayloadLen is the fixed control payload size: command, 3 reserved bytes, u32 parameter.
const PayloadLen = 8

func (c Command) String() string {
	switch c {
	case CmdPing:
		return "PING"
	case CmdRxRequest:
		return "RX"
	case CmdTxRequest:
		return "TX"
	case CmdData:
		return "DATA"
	case CmdExit:
		return "EXIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// Control is a decoded control payload.
type Control struct {
	Command Command
	Param   uint32
}
