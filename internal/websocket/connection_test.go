package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

// recordingWriter captures frames written by the connection's writer
// goroutine.
type recordingWriter struct {
	mu     sync.Mutex
	frames [][]byte
	wrote  chan struct{}
	closed bool
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{wrote: make(chan struct{}, 64)}
}

func (w *recordingWriter) SetWriteDeadline(time.Time) error { return nil }

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	w.frames = append(w.frames, cp)
	w.mu.Unlock()
	w.wrote <- struct{}{}
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *recordingWriter) waitFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		w.mu.Lock()
		if len(w.frames) >= n {
			out := make([][]byte, len(w.frames))
			copy(out, w.frames)
			w.mu.Unlock()
			return out
		}
		w.mu.Unlock()

		select {
		case <-w.wrote:
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames", n)
		}
	}
}

func TestConnection_WritesEnqueuedInOrder(t *testing.T) {
	w := newRecordingWriter()
	conn := NewConnection(w, types.Principal{UserID: "alice"}, 16, time.Second, testLogger())
	defer func() { _ = conn.Close() }()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Enqueue(chatEnv(i)))
	}

	frames := w.waitFrames(t, 3)
	for i := 0; i < 3; i++ {
		var env types.Envelope
		require.NoError(t, json.Unmarshal(frames[i], &env))
		require.Equal(t, chatEnv(i).ID, env.ID)
	}
}

func TestConnection_EnqueueAfterCloseFails(t *testing.T) {
	w := newRecordingWriter()
	conn := NewConnection(w, types.Principal{UserID: "alice"}, 16, time.Second, testLogger())

	require.NoError(t, conn.Close())
	require.ErrorIs(t, conn.Enqueue(chatEnv(0)), types.ErrConnectionGone)
}

func TestConnection_CloseIdempotent(t *testing.T) {
	w := newRecordingWriter()
	conn := NewConnection(w, types.Principal{UserID: "alice"}, 16, time.Second, testLogger())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	w.mu.Lock()
	defer w.mu.Unlock()
	require.True(t, w.closed)
}

func TestConnection_DoneSignalsAfterClose(t *testing.T) {
	w := newRecordingWriter()
	conn := NewConnection(w, types.Principal{UserID: "alice"}, 16, time.Second, testLogger())

	select {
	case <-conn.Done():
		t.Fatal("done before close")
	default:
	}

	require.NoError(t, conn.Close())

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("done not signalled")
	}
}
