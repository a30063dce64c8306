package signaling

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMissingTitle    = errors.New("session title is required")
	ErrMissingTarget   = errors.New("signal missing target user")
	ErrNotHost         = errors.New("only the session host may do this")
)
