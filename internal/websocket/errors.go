package websocket

import "errors"

// Connection-related errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidFrame     = errors.New("invalid client frame")
	ErrUnknownFrameKind = errors.New("unknown frame kind")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// Registry-related errors.
var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrNotRegistered = errors.New("connection not registered")
)
