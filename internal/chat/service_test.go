package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []*types.Envelope
	err       error
}

func (p *recordingPublisher) Publish(env *types.Envelope) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.published = append(p.published, env)
	return uint64(len(p.published)), nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// orderedStore records whether the publish happened before persistence.
type orderedStore struct {
	publisher *recordingPublisher

	mu              sync.Mutex
	saved           []*types.ChatMessage
	publishedAtSave []int
	saveErr         error
}

func (s *orderedStore) SaveChatMessage(_ context.Context, msg *types.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, msg)
	s.publishedAtSave = append(s.publishedAtSave, s.publisher.count())
	return nil
}

func (s *orderedStore) LoadRecentChatMessages(context.Context, string, int) ([]*types.ChatMessage, error) {
	return nil, nil
}

func (s *orderedStore) LoadRecentDirectMessages(context.Context, string, string, int) ([]*types.ChatMessage, error) {
	return nil, nil
}

func (s *orderedStore) HealthCheck(context.Context) error { return nil }
func (s *orderedStore) Close() error                      { return nil }

func sender() types.Principal { return types.Principal{UserID: "alice", DisplayName: "Alice"} }

func TestService_SendToRoomPublishesThenPersists(t *testing.T) {
	pub := &recordingPublisher{}
	store := &orderedStore{publisher: pub}
	svc := NewService(pub, store, testLogger())

	msg, err := svc.SendToRoom(context.Background(), "room1", sender(), "hello", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, types.KindChat, msg.Type)

	require.Equal(t, 1, pub.count())
	env := pub.published[0]
	require.Equal(t, types.ChatTopic("room1"), env.Topic)
	require.Equal(t, msg, env.Chat)

	// Persistence ran after the publish completed.
	require.Len(t, store.saved, 1)
	require.Equal(t, 1, store.publishedAtSave[0])
}

func TestService_EmptyMessagePublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	store := &orderedStore{publisher: pub}
	svc := NewService(pub, store, testLogger())

	for _, content := range []string{"", "   ", "\t\n"} {
		_, err := svc.SendToRoom(context.Background(), "room1", sender(), content, "", "")
		require.ErrorIs(t, err, types.ErrEmptyMessage)
	}
	require.Equal(t, 0, pub.count())
	require.Empty(t, store.saved)
}

func TestService_ContentTooLargeRejected(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(pub, nil, testLogger())

	huge := strings.Repeat("x", types.MaxContentBytes+1)
	_, err := svc.SendToRoom(context.Background(), "room1", sender(), huge, "", "")
	require.ErrorIs(t, err, types.ErrContentTooLarge)
	require.Equal(t, 0, pub.count())
}

func TestService_InvalidRoomIDRejected(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(pub, nil, testLogger())

	_, err := svc.SendToRoom(context.Background(), "room with spaces", sender(), "hi", "", "")
	require.ErrorIs(t, err, types.ErrInvalidRoomID)
}

func TestService_StoreFailureDoesNotFailSend(t *testing.T) {
	pub := &recordingPublisher{}
	store := &orderedStore{publisher: pub, saveErr: errors.New("disk full")}
	svc := NewService(pub, store, testLogger())

	_, err := svc.SendToRoom(context.Background(), "room1", sender(), "hello", "", "")
	require.NoError(t, err)
	require.Equal(t, 1, pub.count())
}

func TestService_SendDirectTargetsUserTopic(t *testing.T) {
	pub := &recordingPublisher{}
	store := &orderedStore{publisher: pub}
	svc := NewService(pub, store, testLogger())

	msg, err := svc.SendDirect(context.Background(), sender(), "bob", "psst")
	require.NoError(t, err)
	require.Equal(t, types.KindPrivate, msg.Type)
	require.Equal(t, "bob", msg.RecipientID)

	env := pub.published[0]
	require.Equal(t, types.UserTopic("bob"), env.Topic)
	require.Equal(t, "bob", env.TargetUserID)
	require.Len(t, store.saved, 1)
}

func TestService_SendDirectInvalidRecipient(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(pub, nil, testLogger())

	_, err := svc.SendDirect(context.Background(), sender(), "not a user!", "psst")
	require.ErrorIs(t, err, types.ErrInvalidUserID)
	require.Equal(t, 0, pub.count())
}

func TestService_PublishFailureSurfacedAndNotPersisted(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	store := &orderedStore{publisher: pub}
	svc := NewService(pub, store, testLogger())

	_, err := svc.SendToRoom(context.Background(), "room1", sender(), "hello", "", "")
	require.Error(t, err)
	require.Empty(t, store.saved)
}
