package session

import (
	"errors"
	"fmt"
)

var (
	// ErrExitRequested ends Serve when a peer sends EXIT.
	ErrExitRequested = errors.New("session: exit requested")
	ErrIncomplete    = errors.New("session: transfer incomplete")
	ErrNoResponse    = errors.New("session: no response")
)

// SequenceMismatch records one out of order data frame. The transfer resyncs and keeps
// going.
type SequenceMismatch struct {
	Expected uint32 `json:"expected"`
	Actual   uint32 `json:"actual"`
}

func (m SequenceMismatch) Error() string {
	return fmt.Sprintf("invalid seq: expected %d received %d", m.Expected, m.Actual)
}
