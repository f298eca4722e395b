package signaling

import "errors"

var (
	ErrMalformedMessage   = errors.New("signaling: malformed message")
	ErrUnknownMessageType = errors.New("signaling: unknown message type")
	ErrPayloadRejected    = errors.New("signaling: payload rejected")
	ErrOutboxFull         = errors.New("signaling: send queue overflow")
	ErrOutboxClosed       = errors.New("signaling: send queue closed")
	ErrTooManyConnections = errors.New("signaling: too many connections")
)
