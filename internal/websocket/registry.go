package websocket

import (
	"log/slog"
	"sync"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Connection lifecycle states driving the disconnect reaper's state machine.
type connState int

const (
	stateConnected connState = iota
	stateDisconnecting
	stateGone
)

type registryEntry struct {
	conn   interfaces.Connection
	state  connState
	topics map[string]struct{}
}

// Registry tracks live connections, the principal behind each one and the
// topics it is subscribed to. It owns Connection entries exclusively:
// created on transport connect, destroyed on disconnect or explicit close.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*registryEntry
	byUser map[string]map[string]interfaces.Connection // userID -> connID -> conn
	logger *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*registryEntry),
		byUser: make(map[string]map[string]interfaces.Connection),
		logger: logger.With("component", "registry"),
	}
}

// Register adds a connection and auto-subscribes it to its principal's user
// topic. A duplicate connection id is an invariant violation: logged and
// rejected with types.ErrDuplicateConnection, fatal for that connection only.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, exists := r.conns[id]; exists {
		r.logger.Error("duplicate connection id rejected", "conn_id", id)
		return types.ErrDuplicateConnection
	}

	userID := conn.Principal().UserID
	entry := &registryEntry{
		conn:   conn,
		state:  stateConnected,
		topics: map[string]struct{}{types.UserTopic(userID): {}},
	}
	r.conns[id] = entry

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]interfaces.Connection)
	}
	r.byUser[userID][id] = conn

	r.logger.Info("connection registered", "conn_id", id, "user", userID)
	return nil
}

// Attach subscribes a connection to a topic. It fails with ErrNotRegistered
// once the connection has begun disconnecting, which is what makes a join
// racing a disconnect resolve to zero residual memberships.
func (r *Registry) Attach(connID, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.conns[connID]
	if !exists || entry.state != stateConnected {
		return ErrNotRegistered
	}
	entry.topics[topic] = struct{}{}
	return nil
}

// Detach unsubscribes a connection from a topic. Idempotent.
func (r *Registry) Detach(connID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.conns[connID]; exists {
		delete(entry.topics, topic)
	}
}

// Topics returns a snapshot of the connection's subscribed topics.
func (r *Registry) Topics(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.conns[connID]
	if !exists {
		return nil
	}
	topics := make([]string, 0, len(entry.topics))
	for t := range entry.topics {
		topics = append(topics, t)
	}
	return topics
}

// Get returns a connection by id while it is still CONNECTED. Delivery paths
// use this, so a connection mid-teardown no longer receives fan-out.
func (r *Registry) Get(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.conns[connID]
	if !exists || entry.state != stateConnected {
		return nil, false
	}
	return entry.conn, true
}

// ConnectionsForUser returns every live connection of a user.
func (r *Registry) ConnectionsForUser(userID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.byUser[userID]))
	for id, conn := range r.byUser[userID] {
		if entry, ok := r.conns[id]; ok && entry.state == stateConnected {
			conns = append(conns, conn)
		}
	}
	return conns
}

// SubscribedTo returns every live connection subscribed to a topic.
func (r *Registry) SubscribedTo(topic string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []interfaces.Connection
	for _, entry := range r.conns {
		if entry.state != stateConnected {
			continue
		}
		if _, ok := entry.topics[topic]; ok {
			conns = append(conns, entry.conn)
		}
	}
	return conns
}

// BeginDisconnect transitions CONNECTED -> DISCONNECTING and returns the
// topic snapshot the reaper must leave. The second and any later call for
// the same id returns ok=false, which makes duplicate disconnect signals
// from the transport layer a no-op.
func (r *Registry) BeginDisconnect(connID string) (topics []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.conns[connID]
	if !exists || entry.state != stateConnected {
		return nil, false
	}
	entry.state = stateDisconnecting

	topics = make([]string, 0, len(entry.topics))
	for t := range entry.topics {
		topics = append(topics, t)
	}
	return topics, true
}

// Unregister transitions to GONE and removes the entry. Idempotent: a second
// call for the same id is a no-op. All membership cleanup happens before
// this is called (see the reaper), so a query after Unregister returns never
// observes a stale participant.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.conns[connID]
	if !exists {
		return
	}

	userID := entry.conn.Principal().UserID
	entry.state = stateGone
	delete(r.conns, connID)

	if userConns, ok := r.byUser[userID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.byUser, userID)
		}
	}

	r.logger.Info("connection unregistered", "conn_id", connID, "user", userID)
}

// ConnIDs returns a snapshot of every tracked connection id. Used by the
// application to drain connections at shutdown.
func (r *Registry) ConnIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"connections": len(r.conns),
		"users":       len(r.byUser),
	}
}
