package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"liveclass/pkg/types"
)

var (
	ErrStoreClosed  = errors.New("store is closed")
	ErrWriteTimeout = errors.New("write operation timed out")
)

// SQLiteStore persists chat history. SQLite allows concurrent readers but a
// single writer, so every write goes through one goroutine; reads hit the
// connection pool directly.
type SQLiteStore struct {
	db       *sql.DB
	writes   chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup

	// retryDelay is the pause before the single write retry.
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool

	logger *slog.Logger
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Options tune the SQLite connection pool.
type Options struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultOptions fits classroom scale, a few dozen concurrent users.
func DefaultOptions(path string) Options {
	return Options{
		Path:            path,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Open opens the database, applies the schema and starts the write loop.
func Open(opts Options, logger *slog.Logger) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, errors.New("store path cannot be empty")
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10
	}

	db, err := sql.Open("sqlite3", opts.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxConnections)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:         db,
		writes:     make(chan writeOp, 100),
		shutdown:   make(chan struct{}),
		retryDelay: 5 * time.Second,
		logger:     logger.With("component", "store"),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writes:
			err := op.fn(s.db)
			if err != nil {
				// Retry once after a pause; WAL busy conflicts are transient.
				s.logger.Warn("write failed, retrying", "error", err)
				time.Sleep(s.retryDelay)
				err = op.fn(s.db)
				if err != nil {
					s.logger.Error("write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *SQLiteStore) executeWrite(fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writes <- writeOp{fn: fn, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// SaveChatMessage appends one message to history.
func (s *SQLiteStore) SaveChatMessage(ctx context.Context, msg *types.ChatMessage) error {
	return s.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO chat_messages
				(id, type, room_id, sender_id, sender_name, recipient_id, content, attachment_url, reply_to, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			msg.ID,
			msg.Type,
			nullable(msg.RoomID),
			msg.SenderID,
			msg.SenderName,
			nullable(msg.RecipientID),
			msg.Content,
			nullable(msg.AttachmentURL),
			nullable(msg.ReplyTo),
			msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
		return nil
	})
}

// LoadRecentChatMessages returns the latest limit messages for a room in
// chronological order.
func (s *SQLiteStore) LoadRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, type, room_id, sender_id, sender_name, recipient_id, content, attachment_url, reply_to, timestamp
		FROM chat_messages
		WHERE room_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query room history: %w", err)
	}
	return scanReversed(rows)
}

// LoadRecentDirectMessages returns the latest limit private messages between
// two users, either direction, in chronological order.
func (s *SQLiteStore) LoadRecentDirectMessages(ctx context.Context, userA, userB string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, type, room_id, sender_id, sender_name, recipient_id, content, attachment_url, reply_to, timestamp
		FROM chat_messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY timestamp DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query direct history: %w", err)
	}
	return scanReversed(rows)
}

// HealthCheck validates connectivity and a basic read.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.QueryContext(ctx, "SELECT COUNT(*) FROM chat_messages LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the write loop and closes the pool. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func scanReversed(rows *sql.Rows) ([]*types.ChatMessage, error) {
	defer func() { _ = rows.Close() }()

	var messages []*types.ChatMessage
	for rows.Next() {
		var (
			msg           types.ChatMessage
			roomID        sql.NullString
			recipientID   sql.NullString
			attachmentURL sql.NullString
			replyTo       sql.NullString
		)
		err := rows.Scan(
			&msg.ID,
			&msg.Type,
			&roomID,
			&msg.SenderID,
			&msg.SenderName,
			&recipientID,
			&msg.Content,
			&attachmentURL,
			&replyTo,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msg.RoomID = roomID.String
		msg.RecipientID = recipientID.String
		msg.AttachmentURL = attachmentURL.String
		msg.ReplyTo = replyTo.String
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}

	// Query returned newest-first; callers want chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
