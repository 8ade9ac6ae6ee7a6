package protocol

import "errors"

var (
	ErrEmptyPayload = errors.New("protocol: empty payload")
	ErrShortPayload = errors.New("protocol: short control payload")
)
