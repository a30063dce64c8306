package types

import (
	"time"

	"github.com/goccy/go-json"
)

// ChatMessage is the payload of CHAT, JOIN and LEAVE envelopes. Persistence
// is delegated to the external store; the core never re-reads its own
// history.
type ChatMessage struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"` // CHAT, PRIVATE, JOIN or LEAVE
	RoomID        string    `json:"room_id,omitempty"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name,omitempty"`
	RecipientID   string    `json:"recipient_id,omitempty"` // set for direct messages
	Content       string    `json:"content,omitempty"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	ReplyTo       string    `json:"reply_to,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Whiteboard action kinds.
const (
	WhiteboardDraw  = "draw"
	WhiteboardErase = "erase"
	WhiteboardClear = "clear"
	WhiteboardMove  = "move"
	WhiteboardText  = "text"
)

// WhiteboardAction is a single drawing operation. Sequence is the room-scoped
// number assigned at publish time; it is the tie-break for concurrent strokes
// from different users.
type WhiteboardAction struct {
	Action      string    `json:"action"` // draw, erase, clear, move, text
	Tool        string    `json:"tool,omitempty"`
	Color       string    `json:"color,omitempty"`
	StrokeWidth int       `json:"stroke_width,omitempty"`
	StartX      float64   `json:"start_x"`
	StartY      float64   `json:"start_y"`
	EndX        float64   `json:"end_x"`
	EndY        float64   `json:"end_y"`
	Text        string    `json:"text,omitempty"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	Sequence    uint64    `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsValidWhiteboardAction reports whether the action kind is known.
func IsValidWhiteboardAction(action string) bool {
	switch action {
	case WhiteboardDraw, WhiteboardErase, WhiteboardClear, WhiteboardMove, WhiteboardText:
		return true
	}
	return false
}

// SignalPayload is a point-to-point peer negotiation payload relayed between
// two participants of the same video session. Data is opaque to the core.
type SignalPayload struct {
	Type      string          `json:"type,omitempty"` // offer, answer, ice_candidate, session_ended
	SessionID string          `json:"session_id"`
	FromUser  string          `json:"from_user"`
	ToUser    string          `json:"to_user,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Notification severities.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// NotificationMessage is an asynchronous, user-addressed event. It is
// delivered only to live connections; undelivered notifications are the
// external persistence layer's concern.
type NotificationMessage struct {
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TargetURL string    `json:"target_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
