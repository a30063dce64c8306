package types

import "errors"

// Core error taxonomy shared across components. Validation errors are
// returned synchronously to the caller and never partially applied; delivery
// failures are isolated per connection and at most logged.
var (
	ErrEmptyMessage        = errors.New("message content cannot be empty")
	ErrRoomFull            = errors.New("room is at capacity")
	ErrNotAParticipant     = errors.New("user is not a participant of this session")
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrConnectionGone      = errors.New("connection is no longer registered")
	ErrQueueOverflow       = errors.New("outbound queue full of essential messages")
	ErrInvalidUserID       = errors.New("user ID must be 1-64 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRoomID       = errors.New("room ID must be 1-128 characters, alphanumeric plus underscore/hyphen/colon")
	ErrContentTooLarge     = errors.New("message content exceeds 64KB limit")
	ErrInvalidAction       = errors.New("unknown whiteboard action")
)
