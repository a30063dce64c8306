package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Service builds chat envelopes and hands them to the broker. It does not
// enforce room membership itself; the broker's delivery-time membership
// check is authoritative. Persistence runs after publish, so best-effort
// live delivery takes priority over durability.
type Service struct {
	publisher interfaces.Publisher
	store     interfaces.ChatStore
	logger    *slog.Logger
}

// NewService creates a chat service. store may be nil when persistence is
// handled entirely out of process.
func NewService(publisher interfaces.Publisher, store interfaces.ChatStore, logger *slog.Logger) *Service {
	return &Service{
		publisher: publisher,
		store:     store,
		logger:    logger.With("component", "chat"),
	}
}

// SendToRoom broadcasts a chat message to a room. Empty content fails with
// types.ErrEmptyMessage and publishes nothing.
func (s *Service) SendToRoom(ctx context.Context, roomID string, sender types.Principal, content, attachmentURL, replyTo string) (*types.ChatMessage, error) {
	if !types.IsValidRoomID(roomID) {
		return nil, types.ErrInvalidRoomID
	}
	if err := types.ValidateChatContent(strings.TrimSpace(content)); err != nil {
		return nil, err
	}

	msg := &types.ChatMessage{
		ID:            uuid.New().String(),
		Type:          types.KindChat,
		RoomID:        roomID,
		SenderID:      sender.UserID,
		SenderName:    sender.DisplayName,
		Content:       content,
		AttachmentURL: attachmentURL,
		ReplyTo:       replyTo,
		Timestamp:     time.Now(),
	}

	if _, err := s.publisher.Publish(&types.Envelope{
		Kind:   types.KindChat,
		Topic:  types.ChatTopic(roomID),
		RoomID: roomID,
		Sender: sender,
		Chat:   msg,
	}); err != nil {
		return nil, err
	}

	s.persist(ctx, msg)
	return msg, nil
}

// SendDirect sends a one-to-one chat message to every live connection of the
// recipient, via the recipient's user topic.
func (s *Service) SendDirect(ctx context.Context, sender types.Principal, recipientID, content string) (*types.ChatMessage, error) {
	if !types.IsValidUserID(recipientID) {
		return nil, types.ErrInvalidUserID
	}
	if err := types.ValidateChatContent(strings.TrimSpace(content)); err != nil {
		return nil, err
	}

	msg := &types.ChatMessage{
		ID:          uuid.New().String(),
		Type:        types.KindPrivate,
		SenderID:    sender.UserID,
		SenderName:  sender.DisplayName,
		RecipientID: recipientID,
		Content:     content,
		Timestamp:   time.Now(),
	}

	if _, err := s.publisher.Publish(&types.Envelope{
		Kind:         types.KindChat,
		Topic:        types.UserTopic(recipientID),
		TargetUserID: recipientID,
		Sender:       sender,
		Chat:         msg,
	}); err != nil {
		return nil, err
	}

	s.persist(ctx, msg)
	return msg, nil
}

// persist hands the already-delivered message to the external store. A
// storage failure is logged, never surfaced: the message is live by now.
func (s *Service) persist(ctx context.Context, msg *types.ChatMessage) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveChatMessage(ctx, msg); err != nil {
		s.logger.Warn("chat message not persisted",
			"message_id", msg.ID, "room", msg.RoomID, "error", err)
	}
}
