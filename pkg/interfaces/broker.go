package interfaces

import "liveclass/pkg/types"

// Publisher is the in-process publish side of the topic router. Publish is
// fire-and-forget from the caller's perspective: delivery is at-most-once
// per currently-subscribed connection, best-effort, and never blocks on a
// slow consumer. The returned sequence number is topic-scoped, monotonically
// increasing and assigned at publish time.
type Publisher interface {
	Publish(env *types.Envelope) (uint64, error)
}

// MembershipView is the broker's delivery-time view of room membership.
// Membership state is the single source of truth for who is present: the
// broker never fans out to a topic without checking it first, so a
// connection that left a room can never receive a message addressed to that
// room even if the publish was in flight at leave time.
type MembershipView interface {
	// ParticipantConnections returns the connection ids currently joined to
	// a topic.
	ParticipantConnections(topic string) []string

	// HasUser reports whether any connection of the user is joined to the
	// topic.
	HasUser(topic, userID string) bool
}

// Disconnector accepts force-disconnect requests for connections that must
// be torn down. Signal never blocks the caller; the full disconnect
// lifecycle (synthetic LEAVEs, then unregistration) runs on the
// disconnector's own goroutine.
type Disconnector interface {
	Signal(connID string)
}
