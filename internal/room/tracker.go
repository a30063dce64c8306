package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// ConnectionRegistry is the registry surface the tracker needs to keep the
// invariant that a participant entry exists if and only if the underlying
// connection is still registered.
type ConnectionRegistry interface {
	Attach(connID, topic string) error
	Detach(connID, topic string)
}

// Tracker owns per-room membership. Each room's participant set is guarded
// by exactly one mutex; connections hold only the room's topic string, never
// a pointer into another room's state. The capacity check and the insert are
// one atomic unit under that mutex.
type Tracker struct {
	registry  ConnectionRegistry
	publisher interfaces.Publisher

	mu    sync.RWMutex
	rooms map[string]*roomState

	logger *slog.Logger
}

type roomState struct {
	mu           sync.Mutex
	topic        string
	kind         string
	capacity     int // 0 = uncapped
	dead         bool
	participants map[string]*types.Participant
}

// NewTracker creates an empty membership tracker.
func NewTracker(registry ConnectionRegistry, publisher interfaces.Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		registry:  registry,
		publisher: publisher,
		rooms:     make(map[string]*roomState),
		logger:    logger.With("component", "membership"),
	}
}

// EnsureRoom pre-creates a room with an explicit kind and capacity. Video
// session rooms are created this way; chat and whiteboard rooms materialize
// uncapped on first join.
func (t *Tracker) EnsureRoom(topic, kind string, capacity int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.rooms[topic]; !exists {
		t.rooms[topic] = &roomState{
			topic:        topic,
			kind:         kind,
			capacity:     capacity,
			participants: make(map[string]*types.Participant),
		}
	}
}

// Join adds a connection to a room and broadcasts a JOIN envelope. Joining a
// room the connection is already in is an idempotent no-op, reported via
// JoinResult.AlreadyJoined, so reconnect retries are tolerated. Fails with
// types.ErrRoomFull at capacity and with types.ErrConnectionGone when the
// connection has already begun disconnecting.
func (t *Tracker) Join(connID, topic string, principal types.Principal) (types.JoinResult, error) {
	room := t.room(topic)

	room.mu.Lock()
	// A garbage-collected room may still be referenced by a racing join;
	// re-fetch until we hold a live one.
	for room.dead {
		room.mu.Unlock()
		room = t.room(topic)
		room.mu.Lock()
	}

	if _, present := room.participants[connID]; present {
		count := len(room.participants)
		room.mu.Unlock()
		return types.JoinResult{Topic: topic, AlreadyJoined: true, Participants: count}, nil
	}

	if room.capacity > 0 && len(room.participants) >= room.capacity {
		room.mu.Unlock()
		return types.JoinResult{}, types.ErrRoomFull
	}

	// Attach fails once the connection is mid-disconnect; the membership
	// entry is never created, so a join racing a disconnect leaves nothing
	// behind.
	if err := t.registry.Attach(connID, topic); err != nil {
		room.mu.Unlock()
		return types.JoinResult{}, types.ErrConnectionGone
	}

	room.participants[connID] = &types.Participant{
		ConnID:    connID,
		Principal: principal,
		JoinedAt:  time.Now(),
	}
	count := len(room.participants)
	room.mu.Unlock()

	t.logger.Info("joined room", "topic", topic, "user", principal.UserID, "participants", count)

	// Published outside the room lock: the broker re-reads membership at
	// delivery time, so ordering with a racing leave is safe.
	t.announce(topic, types.KindJoin, principal)

	return types.JoinResult{Topic: topic, Participants: count}, nil
}

// Leave removes a connection from a room and broadcasts a LEAVE envelope.
// Leaving a room the connection is not in is a no-op reported via
// LeaveResult.WasPresent.
func (t *Tracker) Leave(connID, topic string) (types.LeaveResult, error) {
	room, exists := t.lookup(topic)
	if !exists {
		return types.LeaveResult{Topic: topic, WasPresent: false}, nil
	}

	room.mu.Lock()
	participant, present := room.participants[connID]
	if !present {
		room.mu.Unlock()
		return types.LeaveResult{Topic: topic, WasPresent: false}, nil
	}
	delete(room.participants, connID)
	empty := len(room.participants) == 0
	room.mu.Unlock()

	t.registry.Detach(connID, topic)

	if empty && room.capacity == 0 {
		// Uncapped rooms are garbage-collected when the last participant
		// leaves; capped session rooms keep their configuration.
		t.mu.Lock()
		if r, ok := t.rooms[topic]; ok {
			r.mu.Lock()
			if len(r.participants) == 0 {
				r.dead = true
				delete(t.rooms, topic)
			}
			r.mu.Unlock()
		}
		t.mu.Unlock()
	}

	t.logger.Info("left room", "topic", topic, "user", participant.Principal.UserID)
	t.announce(topic, types.KindLeave, participant.Principal)

	return types.LeaveResult{Topic: topic, WasPresent: true}, nil
}

// DropRoom removes a room's state entirely. Used when a video session ends.
func (t *Tracker) DropRoom(topic string) {
	t.mu.Lock()
	if r, ok := t.rooms[topic]; ok {
		r.mu.Lock()
		r.dead = true
		r.mu.Unlock()
		delete(t.rooms, topic)
	}
	t.mu.Unlock()
}

// ParticipantConnections returns the connection ids currently in the room.
// This is the broker's delivery-time membership check.
func (t *Tracker) ParticipantConnections(topic string) []string {
	room, exists := t.lookup(topic)
	if !exists {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	ids := make([]string, 0, len(room.participants))
	for id := range room.participants {
		ids = append(ids, id)
	}
	return ids
}

// HasUser reports whether any connection of the user is in the room.
func (t *Tracker) HasUser(topic, userID string) bool {
	room, exists := t.lookup(topic)
	if !exists {
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	for _, p := range room.participants {
		if p.Principal.UserID == userID {
			return true
		}
	}
	return false
}

// Participants returns a snapshot of the room's participants.
func (t *Tracker) Participants(topic string) []*types.Participant {
	room, exists := t.lookup(topic)
	if !exists {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	out := make([]*types.Participant, 0, len(room.participants))
	for _, p := range room.participants {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Count returns the current participant count of a room.
func (t *Tracker) Count(topic string) int {
	room, exists := t.lookup(topic)
	if !exists {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.participants)
}

// announce broadcasts a JOIN or LEAVE presence envelope to the room.
func (t *Tracker) announce(topic, kind string, principal types.Principal) {
	_, err := t.publisher.Publish(&types.Envelope{
		ID:     uuid.New().String(),
		Kind:   kind,
		Topic:  topic,
		Sender: principal,
		Chat: &types.ChatMessage{
			ID:         uuid.New().String(),
			Type:       kind,
			SenderID:   principal.UserID,
			SenderName: principal.DisplayName,
			Timestamp:  time.Now(),
		},
	})
	if err != nil {
		t.logger.Warn("presence announcement failed", "topic", topic, "kind", kind, "error", err)
	}
}

func (t *Tracker) room(topic string) *roomState {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, exists := t.rooms[topic]
	if !exists {
		room = &roomState{
			topic:        topic,
			kind:         types.RoomKindForTopic(topic),
			participants: make(map[string]*types.Participant),
		}
		t.rooms[topic] = room
	}
	return room
}

func (t *Tracker) lookup(topic string) (*roomState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	room, exists := t.rooms[topic]
	return room, exists
}
