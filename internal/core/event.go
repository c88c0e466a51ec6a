package core

import "github.com/vovakirdan/nocturnal-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoined confirms that the session is bound to an identity.
	EventJoined EventKind = iota
	// EventMessageCreated notifies the receiver about a new message.
	EventMessageCreated
	// EventMessageSent acknowledges a send to the sender with the persisted record.
	EventMessageSent
	// EventMessageEdited notifies both parties about an edit.
	EventMessageEdited
	// EventMessageDeleted notifies both parties about a delete for everyone.
	EventMessageDeleted
	// EventMessageStatus notifies both parties about a status change.
	EventMessageStatus
	// EventScheduledCreated acknowledges a scheduled message to its sender.
	EventScheduledCreated
	// EventScheduledCancelled acknowledges a cancellation to the sender.
	EventScheduledCancelled
	// EventError notifies the originating client about a failed operation.
	EventError
)

// Op names the operation an error event belongs to.
type Op string

const (
	OpJoin     Op = "join"
	OpMessage  Op = "message"
	OpEdit     Op = "edit"
	OpDelete   Op = "delete"
	OpStatus   Op = "status"
	OpSchedule Op = "schedule"
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	UserID    int64
	Message   *store.Message
	Scheduled *store.ScheduledMessage
	Op        Op
	Error     *CoreError
}
