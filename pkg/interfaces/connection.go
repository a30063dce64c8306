package interfaces

import "liveclass/pkg/types"

// Connection is one live transport session. Implementations own a bounded
// outbound queue and a single writer; Enqueue never blocks the caller.
type Connection interface {
	// ID returns the opaque connection id, unique for the process lifetime.
	ID() string

	// Principal returns the authenticated identity attached at connect time.
	Principal() types.Principal

	// Enqueue appends an envelope to the outbound queue. When the queue is
	// full it drops the oldest non-essential message to make room; if the
	// queue is still full it returns types.ErrQueueOverflow and the caller
	// applies the slow-consumer policy. Returns types.ErrConnectionGone
	// after Close.
	Enqueue(env *types.Envelope) error

	// Close tears down the transport and cancels the reader and writer.
	// Safe to call more than once.
	Close() error
}

// ConnectionSource is the read side of the connection registry used by the
// broker and the notification dispatcher at delivery time.
type ConnectionSource interface {
	// Get returns a connection by id if it is still registered and live.
	Get(connID string) (Connection, bool)

	// ConnectionsForUser returns every live connection of a user. A user
	// with two tabs open has two connections.
	ConnectionsForUser(userID string) []Connection
}
