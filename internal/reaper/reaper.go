package reaper

import (
	"context"
	"log/slog"

	"liveclass/pkg/types"
)

// ConnectionLifecycle is the registry surface driving the per-connection
// state machine CONNECTED -> DISCONNECTING -> GONE.
type ConnectionLifecycle interface {
	// BeginDisconnect transitions to DISCONNECTING exactly once, returning
	// the topics to leave. ok=false on a duplicate disconnect signal.
	BeginDisconnect(connID string) (topics []string, ok bool)

	// Unregister transitions to GONE and removes the entry.
	Unregister(connID string)
}

// MembershipLeaver removes a connection from one room, emitting the
// synthetic LEAVE envelope.
type MembershipLeaver interface {
	Leave(connID, topic string) (types.LeaveResult, error)
}

// Reaper reacts to transport-level disconnect signals. For each joined room
// it calls leave exactly once, then unregisters the connection, all before
// Disconnect returns, so a query after a disconnect never observes a stale
// participant. Duplicate signals and a join racing the disconnect are both
// tolerated: the registry's state machine makes the second signal a no-op
// and refuses attaches once teardown has begun.
type Reaper struct {
	registry   ConnectionLifecycle
	membership MembershipLeaver
	events     chan string
	logger     *slog.Logger
}

// New creates a reaper.
func New(registry ConnectionLifecycle, membership MembershipLeaver, logger *slog.Logger) *Reaper {
	return &Reaper{
		registry:   registry,
		membership: membership,
		events:     make(chan string, 128),
		logger:     logger.With("component", "reaper"),
	}
}

// Disconnect runs the full teardown synchronously. Idempotent.
func (r *Reaper) Disconnect(connID string) {
	topics, ok := r.registry.BeginDisconnect(connID)
	if !ok {
		// Duplicate disconnect signal, or the connection never registered.
		return
	}

	leaves := 0
	for _, topic := range topics {
		// User topics are subscriptions, not room memberships; they go away
		// with the registry entry.
		if types.IsUserTopic(topic) {
			continue
		}
		result, err := r.membership.Leave(connID, topic)
		if err != nil {
			r.logger.Warn("leave during teardown failed", "conn_id", connID, "topic", topic, "error", err)
			continue
		}
		if result.WasPresent {
			leaves++
		}
	}

	r.registry.Unregister(connID)
	r.logger.Info("connection reaped", "conn_id", connID, "rooms_left", leaves)
}

// Signal queues a disconnect event for the Run loop. It never blocks and
// never runs the teardown on the caller's goroutine: callers may hold
// delivery locks that the teardown re-enters.
func (r *Reaper) Signal(connID string) {
	select {
	case r.events <- connID:
	default:
		// Saturated. The next failed delivery re-signals the connection and
		// duplicates are no-ops, so dropping here is safe.
		r.logger.Warn("disconnect event dropped", "conn_id", connID)
	}
}

// Run consumes queued disconnect events until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	for {
		select {
		case connID := <-r.events:
			r.Disconnect(connID)
		case <-ctx.Done():
			return
		}
	}
}
