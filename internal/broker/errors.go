package broker

import "errors"

var (
	ErrInvalidEnvelope = errors.New("envelope must have a topic")
)
