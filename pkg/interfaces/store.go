package interfaces

import (
	"context"

	"liveclass/pkg/types"
)

// ChatStore is the external persistence collaborator. The core consumes it
// and never re-reads its own history on the live path; callers fetch history
// through the REST surface, which reads the store directly.
type ChatStore interface {
	// SaveChatMessage persists a delivered message. It is called after
	// publish, never before, so transport latency is decoupled from storage
	// latency.
	SaveChatMessage(ctx context.Context, msg *types.ChatMessage) error

	// LoadRecentChatMessages returns up to limit room messages, newest last.
	LoadRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error)

	// LoadRecentDirectMessages returns up to limit messages exchanged
	// between the two users, newest last.
	LoadRecentDirectMessages(ctx context.Context, userA, userB string, limit int) ([]*types.ChatMessage, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}
