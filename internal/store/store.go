package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row with the requested id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConditionFailed is returned when a conditional update matched zero rows.
	ErrConditionFailed = errors.New("condition failed")
)

// User represents an identity known to the system.
// Users are created on registration and never mutated by the messaging core.
type User struct {
	ID        int64
	Phone     string
	Name      string
	Avatar    string
	CreatedAt time.Time
}

// MessageKind describes the payload type of a message.
type MessageKind string

const (
	MessageKindText    MessageKind = "text"
	MessageKindMedia   MessageKind = "media"
	MessageKindDeleted MessageKind = "deleted"
)

// MessageStatus tracks delivery progress of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusSeen      MessageStatus = "seen"
)

// Next returns the only status a message may move to from s.
// The second return value is false for the final status or unknown values.
func (s MessageStatus) Next() (MessageStatus, bool) {
	switch s {
	case MessageStatusSent:
		return MessageStatusDelivered, true
	case MessageStatusDelivered:
		return MessageStatusSeen, true
	default:
		return "", false
	}
}

// Previous returns the status that must precede s.
func (s MessageStatus) Previous() (MessageStatus, bool) {
	switch s {
	case MessageStatusDelivered:
		return MessageStatusSent, true
	case MessageStatusSeen:
		return MessageStatusDelivered, true
	default:
		return "", false
	}
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusSeen:
		return true
	}
	return false
}

// Message represents a persisted private message between two users.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	Kind       MessageKind
	Status     MessageStatus
	Edited     bool
	EditedAt   *time.Time
	Deleted    bool
	DeletedAt  *time.Time
	Timestamp  time.Time
}

// ScheduledStatus defines the lifecycle of a scheduled message.
type ScheduledStatus string

const (
	ScheduledStatusPending   ScheduledStatus = "pending"
	ScheduledStatusSent      ScheduledStatus = "sent"
	ScheduledStatusCancelled ScheduledStatus = "cancelled"
)

// ScheduledMessage is a message whose delivery is deferred until ScheduledAt.
type ScheduledMessage struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Content     string
	Kind        MessageKind
	ScheduledAt time.Time
	Status      ScheduledStatus
	MessageID   *int64 // set once promoted
	CreatedAt   time.Time
}

// UserStore handles identity persistence.
type UserStore interface {
	// CreateUser registers a new identity.
	CreateUser(ctx context.Context, phone, name, avatar string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByPhone retrieves a user by the unique contact key.
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a new message and sets its ID.
	AppendMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// UpdateContent replaces the content of a live message owned by senderID.
	// Returns ErrConditionFailed when the message is missing, foreign or deleted.
	UpdateContent(ctx context.Context, id, senderID int64, content string, at time.Time) (*Message, error)

	// MarkDeleted turns a live message owned by senderID into a tombstone.
	// Returns ErrConditionFailed when the message is missing, foreign or already deleted.
	MarkDeleted(ctx context.Context, id, senderID int64, at time.Time) (*Message, error)

	// UpdateStatus moves a message from one status to another.
	// Returns ErrConditionFailed when the current status is not from.
	UpdateStatus(ctx context.Context, id int64, from, to MessageStatus) (*Message, error)

	// History returns the thread between two users ordered by timestamp.
	History(ctx context.Context, userA, userB int64) ([]*Message, error)
}

// ScheduledStore handles scheduled message persistence.
type ScheduledStore interface {
	// AppendScheduled persists a pending scheduled message and sets its ID.
	AppendScheduled(ctx context.Context, sm *ScheduledMessage) error

	// GetScheduled retrieves a scheduled message by ID.
	GetScheduled(ctx context.Context, id int64) (*ScheduledMessage, error)

	// DueScheduled lists pending entries with ScheduledAt <= now, oldest first.
	// A limit <= 0 means no limit.
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error)

	// ListScheduled lists entries created by senderID with the given status.
	ListScheduled(ctx context.Context, senderID int64, status ScheduledStatus) ([]*ScheduledMessage, error)

	// MarkScheduledSent finalizes a pending entry as sent.
	MarkScheduledSent(ctx context.Context, id, messageID int64) error

	// MarkScheduledCancelled finalizes a pending entry owned by senderID as cancelled.
	MarkScheduledCancelled(ctx context.Context, id, senderID int64) (*ScheduledMessage, error)

	// PromoteScheduled atomically marks a pending entry as sent and appends msg
	// to the message ledger. Returns ErrConditionFailed if the entry is not pending.
	PromoteScheduled(ctx context.Context, id int64, msg *Message) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	ScheduledStore

	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
