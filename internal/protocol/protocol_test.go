package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestControlPayloadLayout(t *testing.T) {
	got := ControlPayload(CmdRxRequest, 0x01020304)
	want := []byte{2, 0, 0, 0, 1, 2, 3, 4}
	if !bytes.Equal(got, want) {
		t.Fatalf("control payload %X want %X", got, want)
	}
	if !bytes.Equal(PingPayload(1), []byte{1, 0, 0, 0, 0, 0, 0, 1}) {
		t.Fatalf("ping payload %X", PingPayload(1))
	}
	if !bytes.Equal(DataPayload(258), []byte{4, 0, 0, 0, 0, 0, 1, 2}) {
		t.Fatalf("data payload %X", DataPayload(258))
	}
}

func TestParseControl(t *testing.T) {
	c, err := ParseControl(ControlPayload(CmdTxRequest, 1000))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Command != CmdTxRequest || c.Param != 1000 {
		t.Fatalf("unexpected control %+v", c)
	}
	if _, err := ParseControl(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if _, err := ParseControl([]byte{4, 0, 0}); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
}

func TestCommandOf(t *testing.T) {
	cases := map[byte]Command{1: CmdPing, 2: CmdRxRequest, 3: CmdTxRequest, 4: CmdData, 5: CmdExit, 0: CmdUnknown, 9: CmdUnknown}
	for b, want := range cases {
		if got := CommandOf([]byte{b}); got != want {
			t.Fatalf("CommandOf(%d)=%s want %s", b, got, want)
		}
	}
	if CommandOf(nil) != CmdUnknown {
		t.Fatalf("empty payload must be unknown")
	}
	if CmdExit.String() != "EXIT" || Command(9).String() != "UNKNOWN(9)" {
		t.Fatalf("unexpected command names")
	}
}
