package sqlite

import "database/sql"

// schema mirrors the persisted layout: users, messages and scheduled_messages.
// Timestamps are written in UTC so text ordering matches time ordering.
// Message parties are not tied to users rows: identities may come from a
// trusted gateway without being registered here.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	phone      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	avatar     TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id   INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT 'text',
	status      TEXT NOT NULL DEFAULT 'sent',
	edited      BOOLEAN NOT NULL DEFAULT 0,
	edited_at   DATETIME,
	deleted     BOOLEAN NOT NULL DEFAULT 0,
	deleted_at  DATETIME,
	timestamp   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(sender_id, receiver_id, timestamp);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id    INTEGER NOT NULL,
	receiver_id  INTEGER NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL DEFAULT 'text',
	scheduled_at DATETIME NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	message_id   INTEGER,
	created_at   DATETIME NOT NULL,
	FOREIGN KEY (message_id) REFERENCES messages(id)
);

CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_messages(status, scheduled_at);
`

// ApplySchema creates the schema on a raw connection.
// It is meant to be passed to NewWithSetup.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
