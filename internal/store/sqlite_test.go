package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(DefaultOptions(path), testLogger())
	require.NoError(t, err)
	s.retryDelay = 10 * time.Millisecond
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func roomMsg(roomID, sender, content string, at time.Time) *types.ChatMessage {
	return &types.ChatMessage{
		ID:         uuid.New().String(),
		Type:       types.KindChat,
		RoomID:     roomID,
		SenderID:   sender,
		SenderName: sender,
		Content:    content,
		Timestamp:  at,
	}
}

func directMsg(from, to, content string, at time.Time) *types.ChatMessage {
	return &types.ChatMessage{
		ID:          uuid.New().String(),
		Type:        types.KindPrivate,
		SenderID:    from,
		SenderName:  from,
		RecipientID: to,
		Content:     content,
		Timestamp:   at,
	}
}

func TestSQLiteStore_SaveAndLoadRoomHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		msg := roomMsg("room1", "alice", "msg", base.Add(time.Duration(i)*time.Minute))
		msg.Content = msg.ID
		require.NoError(t, s.SaveChatMessage(ctx, msg))
	}
	require.NoError(t, s.SaveChatMessage(ctx, roomMsg("other", "bob", "elsewhere", base)))

	got, err := s.LoadRecentChatMessages(ctx, "room1", 10)
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Chronological order, room-scoped.
	for i := 1; i < len(got); i++ {
		require.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
		require.Equal(t, "room1", got[i].RoomID)
	}
}

func TestSQLiteStore_LimitReturnsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	var last *types.ChatMessage
	for i := 0; i < 10; i++ {
		last = roomMsg("room1", "alice", "msg", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.SaveChatMessage(ctx, last))
	}

	got, err := s.LoadRecentChatMessages(ctx, "room1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, last.ID, got[2].ID)
}

func TestSQLiteStore_DirectHistoryBothDirections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, s.SaveChatMessage(ctx, directMsg("alice", "bob", "hi", base)))
	require.NoError(t, s.SaveChatMessage(ctx, directMsg("bob", "alice", "hey", base.Add(time.Minute))))
	require.NoError(t, s.SaveChatMessage(ctx, directMsg("alice", "carol", "other thread", base)))

	got, err := s.LoadRecentDirectMessages(ctx, "alice", "bob", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "hi", got[0].Content)
	require.Equal(t, "hey", got[1].Content)
}

func TestSQLiteStore_OptionalFieldsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := roomMsg("room1", "alice", "see attached", time.Now().Truncate(time.Second))
	msg.AttachmentURL = "https://files.example/f.pdf"
	msg.ReplyTo = "some-message-id"
	require.NoError(t, s.SaveChatMessage(ctx, msg))

	got, err := s.LoadRecentChatMessages(ctx, "room1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, msg.AttachmentURL, got[0].AttachmentURL)
	require.Equal(t, msg.ReplyTo, got[0].ReplyTo)
	require.Empty(t, got[0].RecipientID)
}

func TestSQLiteStore_InvalidTypeRejected(t *testing.T) {
	s := openTestStore(t)

	msg := roomMsg("room1", "alice", "x", time.Now())
	msg.Type = "BOGUS"
	require.Error(t, s.SaveChatMessage(context.Background(), msg))
}

func TestSQLiteStore_EmptyRoomHistory(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadRecentChatMessages(context.Background(), "empty", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSQLiteStore_HealthCheck(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.HealthCheck(context.Background()))
}

func TestSQLiteStore_CloseIdempotentAndRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(DefaultOptions(path), testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.SaveChatMessage(context.Background(), roomMsg("room1", "alice", "late", time.Now()))
	require.ErrorIs(t, err, ErrStoreClosed)
}
