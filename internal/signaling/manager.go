package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Membership is the tracker surface the manager needs for session rooms.
type Membership interface {
	EnsureRoom(topic, kind string, capacity int)
	Join(connID, topic string, p types.Principal) (types.JoinResult, error)
	Leave(connID, topic string) (types.LeaveResult, error)
	HasUser(topic, userID string) bool
	Count(topic string) int
	DropRoom(topic string)
}

// Manager owns video-session lifecycle: creation with host-chosen permission
// flags, capped joins and point-to-point signal relay between participants.
// Permission flags are immutable for the session's lifetime and advisory:
// carried to clients, not enforced server-side beyond being reported
// truthfully.
type Manager struct {
	membership Membership
	publisher  interfaces.Publisher

	mu       sync.RWMutex
	sessions map[string]*types.VideoSession

	defaultCapacity int
	logger          *slog.Logger
}

// NewManager creates a signaling manager. defaultCapacity applies when a
// create request does not choose one; zero falls back to 50.
func NewManager(membership Membership, publisher interfaces.Publisher, defaultCapacity int, logger *slog.Logger) *Manager {
	if defaultCapacity <= 0 {
		defaultCapacity = 50
	}
	return &Manager{
		membership:      membership,
		publisher:       publisher,
		sessions:        make(map[string]*types.VideoSession),
		defaultCapacity: defaultCapacity,
		logger:          logger.With("component", "signaling"),
	}
}

// CreateSession registers a new video session and its capped room.
func (m *Manager) CreateSession(host types.Principal, title, description string, permissions types.SessionPermissions, capacity int) (*types.VideoSession, error) {
	if title == "" {
		return nil, ErrMissingTitle
	}
	if capacity <= 0 {
		capacity = m.defaultCapacity
	}

	session := &types.VideoSession{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Host:        host,
		Permissions: permissions,
		Capacity:    capacity,
		CreatedAt:   time.Now(),
	}

	m.membership.EnsureRoom(types.SignalTopic(session.ID), types.RoomVideo, capacity)

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("session created",
		"session_id", session.ID, "host", host.UserID, "capacity", capacity)
	return session, nil
}

// GetSession returns a session by id.
func (m *Manager) GetSession(sessionID string) (*types.VideoSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns every live session.
func (m *Manager) ListSessions() []*types.VideoSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.VideoSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Join adds a connection to the session's room. Fails with types.ErrRoomFull
// at capacity; a repeat join by the same connection is an idempotent no-op.
func (m *Manager) Join(sessionID, connID string, p types.Principal) (types.JoinResult, error) {
	if _, err := m.GetSession(sessionID); err != nil {
		return types.JoinResult{}, err
	}
	result, err := m.membership.Join(connID, types.SignalTopic(sessionID), p)
	if err != nil {
		return types.JoinResult{}, err
	}
	result.RoomID = sessionID
	return result, nil
}

// Leave removes a connection from the session's room.
func (m *Manager) Leave(sessionID, connID string) (types.LeaveResult, error) {
	if _, err := m.GetSession(sessionID); err != nil {
		return types.LeaveResult{}, err
	}
	return m.membership.Leave(connID, types.SignalTopic(sessionID))
}

// Relay forwards a peer-negotiation payload from one participant to another
// participant of the same session. Rejected with types.ErrNotAParticipant
// when either side is not currently joined.
func (m *Manager) Relay(sessionID string, sender types.Principal, signal *types.SignalPayload) error {
	if signal == nil || signal.ToUser == "" {
		return ErrMissingTarget
	}
	if _, err := m.GetSession(sessionID); err != nil {
		return err
	}

	topic := types.SignalTopic(sessionID)
	if !m.membership.HasUser(topic, sender.UserID) || !m.membership.HasUser(topic, signal.ToUser) {
		return types.ErrNotAParticipant
	}

	signal.SessionID = sessionID
	signal.FromUser = sender.UserID

	_, err := m.publisher.Publish(&types.Envelope{
		Kind:         types.KindSignal,
		Topic:        topic,
		RoomID:       sessionID,
		TargetUserID: signal.ToUser,
		Sender:       sender,
		Signal:       signal,
	})
	return err
}

// EndSession tears a session down. Host only. Remaining participants get a
// session_ended signal before the room is dropped.
func (m *Manager) EndSession(sessionID, byUserID string) error {
	m.mu.Lock()
	session, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if session.Host.UserID != byUserID {
		m.mu.Unlock()
		return ErrNotHost
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	topic := types.SignalTopic(sessionID)
	if _, err := m.publisher.Publish(&types.Envelope{
		Kind:   types.KindSignal,
		Topic:  topic,
		RoomID: sessionID,
		Sender: session.Host,
		Signal: &types.SignalPayload{Type: "session_ended", SessionID: sessionID, FromUser: byUserID},
	}); err != nil {
		m.logger.Warn("session end broadcast failed", "session_id", sessionID, "error", err)
	}

	m.membership.DropRoom(topic)
	m.logger.Info("session ended", "session_id", sessionID, "by", byUserID)
	return nil
}

// ParticipantCount returns how many connections are in the session room.
func (m *Manager) ParticipantCount(sessionID string) int {
	return m.membership.Count(types.SignalTopic(sessionID))
}
