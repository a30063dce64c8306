package whiteboard

import (
	"log/slog"
	"sync"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Service serializes concurrent drawing actions into a single per-room order
// and rebroadcasts them. The room-scoped sequence number assigned at publish
// time is the tie-break for concurrent strokes: whichever reaches the server
// first gets the lower number and is rendered first by every client.
//
// The service keeps the action log since the last clear so late joiners can
// replay state. A clear never resets the sequence counter; clients apply it
// as "discard everything below this sequence number, keep listening".
type Service struct {
	publisher interfaces.Publisher

	mu     sync.Mutex
	boards map[string]*board

	logger *slog.Logger
}

type board struct {
	mu           sync.Mutex
	actions      []*types.WhiteboardAction
	lastClearSeq uint64
}

// NewService creates a whiteboard sync service.
func NewService(publisher interfaces.Publisher, logger *slog.Logger) *Service {
	return &Service{
		publisher: publisher,
		boards:    make(map[string]*board),
		logger:    logger.With("component", "whiteboard"),
	}
}

// ApplyAction publishes one drawing action and returns its room-scoped
// sequence number. Receipt order at the server decides the sequence, never
// client-supplied time.
func (s *Service) ApplyAction(roomID string, sender types.Principal, action *types.WhiteboardAction) (uint64, error) {
	if !types.IsValidRoomID(roomID) {
		return 0, types.ErrInvalidRoomID
	}
	if action == nil || !types.IsValidWhiteboardAction(action.Action) {
		return 0, types.ErrInvalidAction
	}

	action.UserID = sender.UserID
	action.UserName = sender.DisplayName
	action.Timestamp = time.Now()

	b := s.board(roomID)

	// The board lock spans publish and log append so the log's order always
	// matches the published sequence order.
	b.mu.Lock()
	defer b.mu.Unlock()

	seq, err := s.publisher.Publish(&types.Envelope{
		Kind:       types.KindWhiteboard,
		Topic:      types.WhiteboardTopic(roomID),
		RoomID:     roomID,
		Sender:     sender,
		Whiteboard: action,
	})
	if err != nil {
		return 0, err
	}

	if action.Action == types.WhiteboardClear {
		// Visual state clears; the counter keeps counting.
		b.actions = b.actions[:0]
		b.lastClearSeq = seq
		s.logger.Info("whiteboard cleared", "room", roomID, "by", sender.UserID, "sequence", seq)
	} else {
		b.actions = append(b.actions, action)
	}

	return seq, nil
}

// Snapshot returns the ordered actions since the last clear. The slice is a
// copy: callers may re-request it and the feed is restartable.
func (s *Service) Snapshot(roomID string) []*types.WhiteboardAction {
	s.mu.Lock()
	b, exists := s.boards[roomID]
	s.mu.Unlock()
	if !exists {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*types.WhiteboardAction, len(b.actions))
	copy(out, b.actions)
	return out
}

// LastClearSequence returns the sequence number of the room's most recent
// clear, zero if the board was never cleared.
func (s *Service) LastClearSequence(roomID string) uint64 {
	s.mu.Lock()
	b, exists := s.boards[roomID]
	s.mu.Unlock()
	if !exists {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastClearSeq
}

func (s *Service) board(roomID string) *board {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.boards[roomID]
	if !exists {
		b = &board{}
		s.boards[roomID] = b
	}
	return b
}
