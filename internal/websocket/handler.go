package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"liveclass/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the fronting proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// PrincipalResolver turns an upgrade request into an authenticated principal.
// Authentication itself is the external auth collaborator's job; the core
// only consumes its result.
type PrincipalResolver interface {
	Resolve(r *http.Request) (types.Principal, error)
}

// ChatSender is the chat service surface the handler dispatches to.
type ChatSender interface {
	SendToRoom(ctx context.Context, roomID string, sender types.Principal, content, attachmentURL, replyTo string) (*types.ChatMessage, error)
	SendDirect(ctx context.Context, sender types.Principal, recipientID, content string) (*types.ChatMessage, error)
}

// WhiteboardApplier is the whiteboard service surface.
type WhiteboardApplier interface {
	ApplyAction(roomID string, sender types.Principal, action *types.WhiteboardAction) (uint64, error)
}

// SessionGateway is the signaling service surface.
type SessionGateway interface {
	Join(sessionID, connID string, p types.Principal) (types.JoinResult, error)
	Leave(sessionID, connID string) (types.LeaveResult, error)
	Relay(sessionID string, sender types.Principal, signal *types.SignalPayload) error
}

// RoomGateway is the membership tracker surface for chat/whiteboard rooms.
type RoomGateway interface {
	Join(connID, topic string, p types.Principal) (types.JoinResult, error)
	Leave(connID, topic string) (types.LeaveResult, error)
}

// DisconnectSink receives transport-level disconnect signals.
type DisconnectSink interface {
	Disconnect(connID string)
}

// Options tunes per-connection transport behavior.
type Options struct {
	QueueSize     int
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	PingInterval  time.Duration
	RatePerMinute int
}

// Handler upgrades HTTP requests, attaches principals and pumps inbound
// frames into the matching service. One reader goroutine per connection;
// outbound writes are owned by the connection's writer.
type Handler struct {
	resolver   PrincipalResolver
	registry   *Registry
	rooms      RoomGateway
	chat       ChatSender
	whiteboard WhiteboardApplier
	sessions   SessionGateway
	reaper     DisconnectSink
	limiter    *RateLimiter
	opts       Options
	logger     *slog.Logger
}

// NewHandler wires the transport endpoint to the collaboration services.
func NewHandler(resolver PrincipalResolver, registry *Registry, rooms RoomGateway, chat ChatSender, whiteboard WhiteboardApplier, sessions SessionGateway, reaper DisconnectSink, opts Options, logger *slog.Logger) *Handler {
	return &Handler{
		resolver:   resolver,
		registry:   registry,
		rooms:      rooms,
		chat:       chat,
		whiteboard: whiteboard,
		sessions:   sessions,
		reaper:     reaper,
		limiter:    NewRateLimiter(opts.RatePerMinute),
		opts:       opts,
		logger:     logger.With("component", "ws-handler"),
	}
}

// clientFrame is the tagged inbound frame. Kind selects the service; one
// payload group matching Kind is read.
type clientFrame struct {
	Kind string `json:"kind"`

	// join / leave
	RoomID   string `json:"room_id,omitempty"`
	RoomKind string `json:"room_kind,omitempty"` // chat or whiteboard

	// chat / chat_direct
	Content       string `json:"content,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty"`
	RecipientID   string `json:"recipient_id,omitempty"`

	// whiteboard
	Action *types.WhiteboardAction `json:"action,omitempty"`

	// session_join / session_leave / signal
	SessionID string               `json:"session_id,omitempty"`
	Signal    *types.SignalPayload `json:"signal,omitempty"`
}

// ServeWS handles a WebSocket upgrade request.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	principal, err := h.resolver.Resolve(r)
	if err != nil {
		h.logger.Warn("principal resolution failed", "from", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "from", r.RemoteAddr, "error", err)
		return
	}

	wsConn := NewConnection(conn, principal, h.opts.QueueSize, h.opts.WriteTimeout, h.logger)

	if err := h.registry.Register(wsConn); err != nil {
		// Duplicate ids are an invariant violation: fatal for this
		// connection, never for the registry.
		h.logger.Error("registration failed", "conn_id", wsConn.ID(), "error", err)
		_ = wsConn.Close()
		return
	}

	go h.pingLoop(conn, wsConn)
	go h.readLoop(conn, wsConn)
}

// pingLoop keeps the connection's heartbeat going until it closes.
func (h *Handler) pingLoop(raw *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// readLoop pumps inbound frames until the transport drops, then hands the
// connection to the reaper. Teardown is synchronous: by the time readLoop
// returns, every membership has been left and the registry entry is gone.
func (h *Handler) readLoop(raw *websocket.Conn, conn *Connection) {
	defer func() {
		h.reaper.Disconnect(conn.ID())
		_ = conn.Close()
	}()

	raw.SetReadLimit(int64(types.MaxContentBytes) + 4096)
	_ = raw.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		messageType, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("unexpected close", "conn_id", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !h.limiter.Allow(conn.Principal().UserID) {
			h.sendError(conn, "rate limit exceeded, slow down")
			continue
		}

		if err := h.dispatch(conn, data); err != nil {
			h.logger.Debug("frame rejected", "conn_id", conn.ID(), "error", err)
			h.sendError(conn, err.Error())
		}
	}
}

// dispatch routes one inbound frame to the matching service.
func (h *Handler) dispatch(conn *Connection, data []byte) error {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ErrInvalidFrame
	}

	ctx := context.Background()
	principal := conn.Principal()

	switch frame.Kind {
	case "join":
		topic, err := roomTopic(frame.RoomID, frame.RoomKind)
		if err != nil {
			return err
		}
		_, err = h.rooms.Join(conn.ID(), topic, principal)
		return err

	case "leave":
		topic, err := roomTopic(frame.RoomID, frame.RoomKind)
		if err != nil {
			return err
		}
		_, err = h.rooms.Leave(conn.ID(), topic)
		return err

	case "chat":
		_, err := h.chat.SendToRoom(ctx, frame.RoomID, principal, frame.Content, frame.AttachmentURL, frame.ReplyTo)
		return err

	case "chat_direct":
		_, err := h.chat.SendDirect(ctx, principal, frame.RecipientID, frame.Content)
		return err

	case "whiteboard":
		if frame.Action == nil {
			return ErrInvalidFrame
		}
		_, err := h.whiteboard.ApplyAction(frame.RoomID, principal, frame.Action)
		return err

	case "session_join":
		_, err := h.sessions.Join(frame.SessionID, conn.ID(), principal)
		return err

	case "session_leave":
		_, err := h.sessions.Leave(frame.SessionID, conn.ID())
		return err

	case "signal":
		if frame.Signal == nil {
			return ErrInvalidFrame
		}
		return h.sessions.Relay(frame.SessionID, principal, frame.Signal)

	default:
		return ErrUnknownFrameKind
	}
}

// sendError pushes an error notification straight onto the connection's
// queue, bypassing the broker: the feedback is for this connection only.
func (h *Handler) sendError(conn *Connection, message string) {
	env := &types.Envelope{
		Kind:      types.KindNotification,
		Topic:     types.UserTopic(conn.Principal().UserID),
		Timestamp: time.Now(),
		Notification: &types.NotificationMessage{
			Severity:  types.SeverityError,
			Title:     "request rejected",
			Message:   message,
			Timestamp: time.Now(),
		},
	}
	if err := conn.Enqueue(env); err != nil {
		h.logger.Debug("error feedback dropped", "conn_id", conn.ID(), "error", err)
	}
}

// roomTopic maps a caller-supplied room id and kind to its topic namespace.
func roomTopic(roomID, roomKind string) (string, error) {
	if !types.IsValidRoomID(roomID) {
		return "", types.ErrInvalidRoomID
	}
	switch roomKind {
	case types.RoomWhiteboard:
		return types.WhiteboardTopic(roomID), nil
	case types.RoomChat, "":
		return types.ChatTopic(roomID), nil
	default:
		return "", ErrInvalidFrame
	}
}
