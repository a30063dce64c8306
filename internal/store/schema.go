package store

import (
	"database/sql"
	"fmt"
)

// chat_messages is append-heavy and read by room or by user pair, so the two
// covering indexes mirror the two query shapes.
const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL CHECK (type IN ('CHAT', 'PRIVATE')),
	room_id        TEXT,
	sender_id      TEXT NOT NULL,
	sender_name    TEXT NOT NULL,
	recipient_id   TEXT,
	content        TEXT NOT NULL,
	attachment_url TEXT,
	reply_to       TEXT,
	timestamp      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_room_time
	ON chat_messages (room_id, timestamp DESC);

CREATE INDEX IF NOT EXISTS idx_chat_direct_time
	ON chat_messages (sender_id, recipient_id, timestamp DESC);
`

const pragmas = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;
`

func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(pragmas); err != nil {
		return fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
