package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema on an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// An in-memory database lives as long as its only connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates tables and indexes if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

// ==== UserStore implementation ====

// CreateUser registers a new identity.
func (s *SQLiteStore) CreateUser(ctx context.Context, phone, name, avatar string) (*store.User, error) {
	query := `
		INSERT INTO users (phone, name, avatar, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, phone, name, avatar, utc(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, phone, name, COALESCE(avatar, ''), created_at
		FROM users
		WHERE id = ?
	`
	return s.getUser(ctx, query, id)
}

// GetUserByPhone retrieves a user by phone.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*store.User, error) {
	query := `
		SELECT id, phone, name, COALESCE(avatar, ''), created_at
		FROM users
		WHERE phone = ?
	`
	return s.getUser(ctx, query, phone)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Phone,
		&user.Name,
		&user.Avatar,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %v: %w", arg, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, sender_id, receiver_id, content, kind, status, edited, edited_at, deleted, deleted_at, timestamp`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var editedAt, deletedAt sql.NullTime
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.Kind,
		&msg.Status,
		&msg.Edited,
		&editedAt,
		&msg.Deleted,
		&deletedAt,
		&msg.Timestamp,
	); err != nil {
		return nil, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return &msg, nil
}

// AppendMessage persists a new message and sets its ID.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	id, err := insertMessage(ctx, s.db, msg)
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, ex execer, msg *store.Message) (int64, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, kind, status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	msg.Timestamp = utc(msg.Timestamp)
	result, err := ex.ExecContext(ctx, query,
		msg.SenderID, msg.ReceiverID, msg.Content, msg.Kind, msg.Status, msg.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// UpdateContent replaces the content of a live message owned by senderID.
func (s *SQLiteStore) UpdateContent(ctx context.Context, id, senderID int64, content string, at time.Time) (*store.Message, error) {
	query := `
		UPDATE messages
		SET content = ?, edited = 1, edited_at = ?
		WHERE id = ? AND sender_id = ? AND deleted = 0
	`
	if err := execConditional(ctx, s.db, query, content, utc(at), id, senderID); err != nil {
		return nil, fmt.Errorf("edit message %d: %w", id, err)
	}
	return s.GetMessage(ctx, id)
}

// MarkDeleted turns a live message owned by senderID into a tombstone.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, id, senderID int64, at time.Time) (*store.Message, error) {
	query := `
		UPDATE messages
		SET deleted = 1, deleted_at = ?, content = '', kind = 'deleted'
		WHERE id = ? AND sender_id = ? AND deleted = 0
	`
	if err := execConditional(ctx, s.db, query, utc(at), id, senderID); err != nil {
		return nil, fmt.Errorf("delete message %d: %w", id, err)
	}
	return s.GetMessage(ctx, id)
}

// UpdateStatus moves a message from one status to another.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id int64, from, to store.MessageStatus) (*store.Message, error) {
	query := `
		UPDATE messages
		SET status = ?
		WHERE id = ? AND status = ?
	`
	if err := execConditional(ctx, s.db, query, to, id, from); err != nil {
		return nil, fmt.Errorf("advance message %d to %s: %w", id, to, err)
	}
	return s.GetMessage(ctx, id)
}

// execConditional runs a guarded single-statement update and reports
// store.ErrConditionFailed when the predicate matched no row.
func execConditional(ctx context.Context, ex execer, query string, args ...any) error {
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec update: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrConditionFailed
	}
	return nil
}

// History returns the thread between two users ordered by timestamp.
func (s *SQLiteStore) History(ctx context.Context, userA, userB int64) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// ==== ScheduledStore implementation ====

const scheduledColumns = `id, sender_id, receiver_id, content, kind, scheduled_at, status, message_id, created_at`

func scanScheduled(row rowScanner) (*store.ScheduledMessage, error) {
	var sm store.ScheduledMessage
	var messageID sql.NullInt64
	if err := row.Scan(
		&sm.ID,
		&sm.SenderID,
		&sm.ReceiverID,
		&sm.Content,
		&sm.Kind,
		&sm.ScheduledAt,
		&sm.Status,
		&messageID,
		&sm.CreatedAt,
	); err != nil {
		return nil, err
	}
	if messageID.Valid {
		sm.MessageID = &messageID.Int64
	}
	return &sm, nil
}

// AppendScheduled persists a pending scheduled message and sets its ID.
func (s *SQLiteStore) AppendScheduled(ctx context.Context, sm *store.ScheduledMessage) error {
	query := `
		INSERT INTO scheduled_messages (sender_id, receiver_id, content, kind, scheduled_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
	`
	sm.ScheduledAt = utc(sm.ScheduledAt)
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = time.Now()
	}
	sm.CreatedAt = utc(sm.CreatedAt)

	result, err := s.db.ExecContext(ctx, query,
		sm.SenderID, sm.ReceiverID, sm.Content, sm.Kind, sm.ScheduledAt, sm.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	sm.ID = id
	sm.Status = store.ScheduledStatusPending
	return nil
}

// GetScheduled retrieves a scheduled message by ID.
func (s *SQLiteStore) GetScheduled(ctx context.Context, id int64) (*store.ScheduledMessage, error) {
	query := `SELECT ` + scheduledColumns + ` FROM scheduled_messages WHERE id = ?`

	sm, err := scanScheduled(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scheduled message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query scheduled message: %w", err)
	}
	return sm, nil
}

// DueScheduled lists pending entries with ScheduledAt <= now, oldest first.
func (s *SQLiteStore) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*store.ScheduledMessage, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM scheduled_messages
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
	`
	args := []any{utc(now)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryScheduled(ctx, query, args...)
}

// ListScheduled lists entries created by senderID with the given status.
func (s *SQLiteStore) ListScheduled(ctx context.Context, senderID int64, status store.ScheduledStatus) ([]*store.ScheduledMessage, error) {
	query := `
		SELECT ` + scheduledColumns + `
		FROM scheduled_messages
		WHERE sender_id = ? AND status = ?
		ORDER BY scheduled_at ASC, id ASC
	`
	return s.queryScheduled(ctx, query, senderID, status)
}

func (s *SQLiteStore) queryScheduled(ctx context.Context, query string, args ...any) ([]*store.ScheduledMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scheduled messages: %w", err)
	}
	defer rows.Close()

	result := make([]*store.ScheduledMessage, 0)
	for rows.Next() {
		sm, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled message: %w", err)
		}
		result = append(result, sm)
	}

	return result, rows.Err()
}

// MarkScheduledSent finalizes a pending entry as sent.
func (s *SQLiteStore) MarkScheduledSent(ctx context.Context, id, messageID int64) error {
	return markScheduledSent(ctx, s.db, id, messageID)
}

func markScheduledSent(ctx context.Context, ex execer, id, messageID int64) error {
	query := `
		UPDATE scheduled_messages
		SET status = 'sent', message_id = ?
		WHERE id = ? AND status = 'pending'
	`
	if err := execConditional(ctx, ex, query, messageID, id); err != nil {
		return fmt.Errorf("mark scheduled %d sent: %w", id, err)
	}
	return nil
}

// MarkScheduledCancelled finalizes a pending entry owned by senderID as cancelled.
func (s *SQLiteStore) MarkScheduledCancelled(ctx context.Context, id, senderID int64) (*store.ScheduledMessage, error) {
	query := `
		UPDATE scheduled_messages
		SET status = 'cancelled'
		WHERE id = ? AND sender_id = ? AND status = 'pending'
	`
	if err := execConditional(ctx, s.db, query, id, senderID); err != nil {
		return nil, fmt.Errorf("cancel scheduled %d: %w", id, err)
	}
	return s.GetScheduled(ctx, id)
}

// PromoteScheduled atomically appends msg and finalizes the scheduled entry.
// Both writes share one transaction, so a crash leaves the entry pending with
// no message written.
func (s *SQLiteStore) PromoteScheduled(ctx context.Context, id int64, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback after Commit is a no-op
	}()

	messageID, err := insertMessage(ctx, tx, msg)
	if err != nil {
		return err
	}

	if err := markScheduledSent(ctx, tx, id, messageID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	msg.ID = messageID
	return nil
}
