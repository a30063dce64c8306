package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"liveclass/pkg/types"
)

// writer is the transport write surface the connection needs. *websocket.Conn
// satisfies it; tests substitute an in-memory recorder.
type writer interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection wraps one live WebSocket session. All outbound traffic goes
// through the bounded sendQueue and a single writer goroutine, which keeps
// per-connection delivery in order and serializes writes on the socket.
type Connection struct {
	id        string
	principal types.Principal
	createdAt time.Time

	conn  writer
	queue *sendQueue

	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewConnection creates a connection wrapper and starts its writer goroutine.
func NewConnection(conn writer, principal types.Principal, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		principal:    principal,
		createdAt:    time.Now(),
		conn:         conn,
		queue:        newSendQueue(queueSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With("component", "connection", "conn_id", ""),
	}
	c.logger = logger.With("component", "connection", "conn_id", c.id, "user", principal.UserID)

	go c.writeLoop()
	return c
}

// ID returns the opaque connection id, unique for the process lifetime.
func (c *Connection) ID() string { return c.id }

// Principal returns the authenticated identity attached at connect time.
func (c *Connection) Principal() types.Principal { return c.principal }

// CreatedAt returns the connection creation time.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// Enqueue adds an envelope to the outbound queue without blocking. See
// sendQueue for the overflow policy.
func (c *Connection) Enqueue(env *types.Envelope) error {
	select {
	case <-c.ctx.Done():
		return types.ErrConnectionGone
	default:
	}

	if err := c.queue.push(env); err != nil {
		if err == ErrConnectionClosed {
			return types.ErrConnectionGone
		}
		return err
	}
	return nil
}

// Close cancels the reader and writer and closes the socket. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.queue.close()
		err = c.conn.Close()
		if dropped := c.queue.droppedCount(); dropped > 0 {
			c.logger.Debug("connection closed with dropped envelopes", "dropped", dropped)
		}
	})
	return err
}

// Done exposes the connection's lifetime for goroutines tied to it.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// writeLoop is the single writer. It drains the queue in batches; envelopes
// for one connection are always written in queue order.
func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.queue.notify:
			for _, env := range c.queue.popAll() {
				data, err := json.Marshal(env)
				if err != nil {
					c.logger.Warn("failed to marshal envelope", "error", err)
					continue
				}
				if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					c.logger.Debug("write failed, stopping writer", "error", err)
					return
				}
			}
		case <-c.ctx.Done():
			return
		}
	}
}
