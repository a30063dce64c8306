package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"liveclass/internal/signaling"
	"liveclass/pkg/types"
)

// SessionDirectory is the signaling surface the REST layer exposes.
type SessionDirectory interface {
	CreateSession(host types.Principal, title, description string, permissions types.SessionPermissions, capacity int) (*types.VideoSession, error)
	GetSession(sessionID string) (*types.VideoSession, error)
	ListSessions() []*types.VideoSession
	EndSession(sessionID, byUserID string) error
	ParticipantCount(sessionID string) int
}

// SnapshotSource serves whiteboard state to late joiners.
type SnapshotSource interface {
	Snapshot(roomID string) []*types.WhiteboardAction
	LastClearSequence(roomID string) uint64
}

// HistorySource serves persisted chat history.
type HistorySource interface {
	LoadRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error)
	HealthCheck(ctx context.Context) error
}

// Notifier pushes user-addressed events to live connections.
type Notifier interface {
	Notify(userID string, msg *types.NotificationMessage) (bool, error)
}

// PrincipalResolver authenticates HTTP requests.
type PrincipalResolver interface {
	Resolve(r *http.Request) (types.Principal, error)
}

// ConnectionStats reports live connection counts.
type ConnectionStats interface {
	Stats() map[string]int
}

// Server is the HTTP surface: session directory, whiteboard snapshots, chat
// history and health. No business logic lives here, only request handling
// and JSON serialization.
type Server struct {
	sessions SessionDirectory
	boards   SnapshotSource
	history  HistorySource
	notifier Notifier
	resolver PrincipalResolver
	stats    ConnectionStats
	validate *validator.Validate
	router   *http.ServeMux
}

// NewServer wires routes against the given components.
func NewServer(sessions SessionDirectory, boards SnapshotSource, history HistorySource, notifier Notifier, resolver PrincipalResolver, stats ConnectionStats) *Server {
	s := &Server{
		sessions: sessions,
		boards:   boards,
		history:  history,
		notifier: notifier,
		resolver: resolver,
		stats:    stats,
		validate: validator.New(),
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/api/whiteboard/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleWhiteboard))))
	s.router.Handle("/api/chat/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleChat))))
	s.router.Handle("/api/notifications", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleNotifications))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type CreateSessionRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Capacity    int    `json:"capacity" validate:"gte=0,lte=1000"`

	RecordSession    bool `json:"record_session"`
	AllowVideo       bool `json:"allow_video"`
	AllowAudio       bool `json:"allow_audio"`
	AllowScreenShare bool `json:"allow_screen_share"`
}

type SessionResponse struct {
	Session          *types.VideoSession `json:"session"`
	ParticipantCount int                 `json:"participant_count"`
}

type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type SnapshotResponse struct {
	RoomID       string                    `json:"room_id"`
	Actions      []*types.WhiteboardAction `json:"actions"`
	LastClearSeq uint64                    `json:"last_clear_sequence"`
}

type ChatHistoryResponse struct {
	RoomID   string               `json:"room_id"`
	Messages []*types.ChatMessage `json:"messages"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Store       string         `json:"store"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	sessionID := pathSegment(r.URL.Path, "/api/sessions/")
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSession(w, sessionID)
	case http.MethodDelete:
		s.endSession(w, r, sessionID)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	principal, err := s.resolver.Resolve(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.sessions.CreateSession(principal, req.Title, req.Description, types.SessionPermissions{
		RecordSession:    req.RecordSession,
		AllowVideo:       req.AllowVideo,
		AllowAudio:       req.AllowAudio,
		AllowScreenShare: req.AllowScreenShare,
	}, req.Capacity)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, SessionResponse{Session: session})
}

func (s *Server) getSession(w http.ResponseWriter, sessionID string) {
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, signaling.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, SessionResponse{
		Session:          session,
		ParticipantCount: s.sessions.ParticipantCount(sessionID),
	})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	principal, err := s.resolver.Resolve(r)
	if err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if err := s.sessions.EndSession(sessionID, principal.UserID); err != nil {
		switch {
		case errors.Is(err, signaling.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, signaling.ErrNotHost):
			s.sendError(w, "Only the host may end a session", http.StatusForbidden)
		default:
			s.sendError(w, "Failed to end session", http.StatusInternalServerError)
		}
		return
	}

	s.writeJSON(w, map[string]string{"message": "Session ended"})
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.ListSessions()

	out := lo.Map(sessions, func(session *types.VideoSession, _ int) SessionResponse {
		return SessionResponse{
			Session:          session,
			ParticipantCount: s.sessions.ParticipantCount(session.ID),
		}
	})

	s.writeJSON(w, ListSessionsResponse{Sessions: out})
}

func (s *Server) handleWhiteboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/whiteboard/")
	roomID, ok := strings.CutSuffix(rest, "/snapshot")
	if !ok || roomID == "" {
		s.sendError(w, "Expected /api/whiteboard/{roomID}/snapshot", http.StatusNotFound)
		return
	}
	if !types.IsValidRoomID(roomID) {
		s.sendError(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	actions := s.boards.Snapshot(roomID)
	if actions == nil {
		actions = []*types.WhiteboardAction{}
	}
	s.writeJSON(w, SnapshotResponse{
		RoomID:       roomID,
		Actions:      actions,
		LastClearSeq: s.boards.LastClearSequence(roomID),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	roomID, ok := strings.CutSuffix(rest, "/messages")
	if !ok || roomID == "" {
		s.sendError(w, "Expected /api/chat/{roomID}/messages", http.StatusNotFound)
		return
	}
	if !types.IsValidRoomID(roomID) {
		s.sendError(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.sendError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	messages, err := s.history.LoadRecentChatMessages(r.Context(), roomID, limit)
	if err != nil {
		s.sendError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}
	s.writeJSON(w, ChatHistoryResponse{RoomID: roomID, Messages: messages})
}

type NotificationRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Severity  string `json:"severity" validate:"omitempty,oneof=info success warning error"`
	Title     string `json:"title" validate:"required,max=200"`
	Message   string `json:"message" validate:"max=2000"`
	TargetURL string `json:"target_url" validate:"omitempty,max=500"`
}

type NotificationResponse struct {
	Delivered bool `json:"delivered"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.resolver.Resolve(r); err != nil {
		s.sendError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	delivered, err := s.notifier.Notify(req.UserID, &types.NotificationMessage{
		Severity:  req.Severity,
		Title:     req.Title,
		Message:   req.Message,
		TargetURL: req.TargetURL,
	})
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, NotificationResponse{Delivered: delivered})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"
	if err := s.history.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storeStatus = err.Error()
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Store:       storeStatus,
		Connections: s.stats.Stats(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func pathSegment(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return ""
	}
	return strings.Split(rest, "/")[0]
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
