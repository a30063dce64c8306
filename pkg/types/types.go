package types

import (
	"strings"
	"time"
)

// MessageKind discriminates the payload carried by an Envelope.
const (
	KindChat         = "CHAT"
	KindPrivate      = "PRIVATE"
	KindJoin         = "JOIN"
	KindLeave        = "LEAVE"
	KindWhiteboard   = "WHITEBOARD"
	KindSignal       = "SIGNAL"
	KindNotification = "NOTIFICATION"
)

// Room kinds. Video rooms are the only capped kind.
const (
	RoomChat       = "chat"
	RoomWhiteboard = "whiteboard"
	RoomVideo      = "video"
)

// Topic namespace prefixes. Each message kind lives in its own namespace so
// that subscribing to one never leaks another kind's traffic.
const (
	topicChatPrefix       = "chat:"
	topicWhiteboardPrefix = "whiteboard:"
	topicSignalPrefix     = "signal:"
	topicUserPrefix       = "user:"
)

// ChatTopic returns the room-broadcast chat topic for a room.
func ChatTopic(roomID string) string { return topicChatPrefix + roomID }

// WhiteboardTopic returns the whiteboard action topic for a room.
func WhiteboardTopic(roomID string) string { return topicWhiteboardPrefix + roomID }

// SignalTopic returns the signaling topic for a video session.
func SignalTopic(sessionID string) string { return topicSignalPrefix + sessionID }

// UserTopic returns the direct topic for a user. Every connection is
// subscribed to its principal's user topic for its whole lifetime.
func UserTopic(userID string) string { return topicUserPrefix + userID }

// IsUserTopic reports whether the topic is a user-direct topic.
func IsUserTopic(topic string) bool { return strings.HasPrefix(topic, topicUserPrefix) }

// UserFromTopic extracts the user id from a user topic.
func UserFromTopic(topic string) string { return strings.TrimPrefix(topic, topicUserPrefix) }

// RoomKindForTopic derives the room kind from a topic's namespace prefix.
func RoomKindForTopic(topic string) string {
	switch {
	case strings.HasPrefix(topic, topicWhiteboardPrefix):
		return RoomWhiteboard
	case strings.HasPrefix(topic, topicSignalPrefix):
		return RoomVideo
	default:
		return RoomChat
	}
}

// IsEssentialKind reports whether a message kind may never be dropped from a
// saturated outbound queue. Dropping a JOIN, LEAVE or SIGNAL would leave
// clients with an inconsistent view of presence or a broken peer negotiation.
func IsEssentialKind(kind string) bool {
	return kind == KindJoin || kind == KindLeave || kind == KindSignal
}

// Principal is the already-authenticated identity attached to a connection.
// It is supplied by the external auth collaborator and never re-validated.
type Principal struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles,omitempty"`
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Envelope is the immutable, sequenced unit moved through the broker.
// Sequence numbers are monotonically increasing per topic and assigned at
// publish time, never by the client. Exactly one payload field matching Kind
// is set.
type Envelope struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Topic        string    `json:"topic"`
	RoomID       string    `json:"room_id,omitempty"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	Sender       Principal `json:"sender"`
	Sequence     uint64    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`

	Chat         *ChatMessage         `json:"chat,omitempty"`
	Whiteboard   *WhiteboardAction    `json:"whiteboard,omitempty"`
	Signal       *SignalPayload       `json:"signal,omitempty"`
	Notification *NotificationMessage `json:"notification,omitempty"`
}

// Participant records a connection's membership in a room.
type Participant struct {
	ConnID    string    `json:"conn_id"`
	Principal Principal `json:"principal"`
	JoinedAt  time.Time `json:"joined_at"`
}

// JoinResult reports the outcome of a join. AlreadyJoined is an idempotent
// no-op, not an error, so that reconnect retries are tolerated.
type JoinResult struct {
	RoomID        string `json:"room_id"`
	Topic         string `json:"topic"`
	AlreadyJoined bool   `json:"already_joined"`
	Participants  int    `json:"participants"`
}

// LeaveResult reports the outcome of a leave.
type LeaveResult struct {
	Topic      string `json:"topic"`
	WasPresent bool   `json:"was_present"`
}

// SessionPermissions are the advisory permission flags set by the host at
// video session creation. They are immutable for the session's lifetime and
// reported truthfully to clients, not enforced server-side.
type SessionPermissions struct {
	RecordSession    bool `json:"record_session"`
	AllowVideo       bool `json:"allow_video"`
	AllowAudio       bool `json:"allow_audio"`
	AllowScreenShare bool `json:"allow_screen_share"`
}

// VideoSession is a capped collaboration room for live audio/video.
type VideoSession struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Host        Principal          `json:"host"`
	Permissions SessionPermissions `json:"permissions"`
	Capacity    int                `json:"capacity"`
	CreatedAt   time.Time          `json:"created_at"`
}
