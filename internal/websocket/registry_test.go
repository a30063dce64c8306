package websocket

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn satisfies interfaces.Connection without a socket.
type fakeConn struct {
	id        string
	principal types.Principal

	mu       sync.Mutex
	received []*types.Envelope
	enqueue  error
	closed   bool
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, principal: types.Principal{UserID: userID, DisplayName: userID}}
}

func (f *fakeConn) ID() string                 { return f.id }
func (f *fakeConn) Principal() types.Principal { return f.principal }

func (f *fakeConn) Enqueue(env *types.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueue != nil {
		return f.enqueue
	}
	f.received = append(f.received, env)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) envelopes() []*types.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Envelope, len(f.received))
	copy(out, f.received)
	return out
}

func TestRegistry_RegisterSubscribesUserTopic(t *testing.T) {
	registry := NewRegistry(testLogger())
	conn := newFakeConn("c1", "alice")

	require.NoError(t, registry.Register(conn))

	topics := registry.Topics("c1")
	require.Equal(t, []string{types.UserTopic("alice")}, topics)

	got, ok := registry.Get("c1")
	require.True(t, ok)
	require.Equal(t, conn, got)
}

func TestRegistry_RegisterDuplicateIDRejected(t *testing.T) {
	registry := NewRegistry(testLogger())

	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))
	err := registry.Register(newFakeConn("c1", "bob"))
	require.ErrorIs(t, err, types.ErrDuplicateConnection)
}

func TestRegistry_RegisterNilRejected(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.ErrorIs(t, registry.Register(nil), ErrNilConnection)
}

func TestRegistry_AttachDetach(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))

	require.NoError(t, registry.Attach("c1", "chat:room1"))
	require.Contains(t, registry.Topics("c1"), "chat:room1")

	registry.Detach("c1", "chat:room1")
	require.NotContains(t, registry.Topics("c1"), "chat:room1")
}

func TestRegistry_AttachUnknownConnectionFails(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.ErrorIs(t, registry.Attach("ghost", "chat:room1"), ErrNotRegistered)
}

func TestRegistry_AttachAfterBeginDisconnectFails(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))

	_, ok := registry.BeginDisconnect("c1")
	require.True(t, ok)

	// A join racing the disconnect must not create residual membership.
	require.ErrorIs(t, registry.Attach("c1", "chat:room1"), ErrNotRegistered)
}

func TestRegistry_BeginDisconnectIdempotent(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))
	require.NoError(t, registry.Attach("c1", "chat:room1"))

	topics, ok := registry.BeginDisconnect("c1")
	require.True(t, ok)
	require.ElementsMatch(t, []string{types.UserTopic("alice"), "chat:room1"}, topics)

	// Duplicate disconnect signals are a no-op.
	_, ok = registry.BeginDisconnect("c1")
	require.False(t, ok)
}

func TestRegistry_GetExcludesDisconnecting(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))

	_, ok := registry.BeginDisconnect("c1")
	require.True(t, ok)

	_, ok = registry.Get("c1")
	require.False(t, ok)
	require.Empty(t, registry.ConnectionsForUser("alice"))
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))

	registry.Unregister("c1")
	registry.Unregister("c1")

	require.Empty(t, registry.ConnIDs())
	require.Equal(t, 0, registry.Stats()["connections"])
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))
	require.NoError(t, registry.Register(newFakeConn("c2", "alice")))

	require.Len(t, registry.ConnectionsForUser("alice"), 2)

	registry.Unregister("c1")
	require.Len(t, registry.ConnectionsForUser("alice"), 1)
	require.Equal(t, 1, registry.Stats()["users"])
}

func TestRegistry_SubscribedTo(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(newFakeConn("c1", "alice")))
	require.NoError(t, registry.Register(newFakeConn("c2", "bob")))
	require.NoError(t, registry.Attach("c1", "whiteboard:room1"))

	subs := registry.SubscribedTo("whiteboard:room1")
	require.Len(t, subs, 1)
	require.Equal(t, "c1", subs[0].ID())
}
