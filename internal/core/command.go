package core

import (
	"time"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin binds the client to a user identity.
	CommandJoin CommandKind = iota
	// CommandSendMessage creates a message for a receiver.
	CommandSendMessage
	// CommandEditMessage replaces the content of an own message.
	CommandEditMessage
	// CommandDeleteMessage deletes an own message for everyone.
	CommandDeleteMessage
	// CommandMarkStatus acknowledges delivery or reading of a received message.
	CommandMarkStatus
	// CommandScheduleMessage defers a message until a due time.
	CommandScheduleMessage
	// CommandCancelScheduled cancels a pending scheduled message.
	CommandCancelScheduled
)

// Command represents an action requested by a client.
// UserID is the identity to bind on join; for other commands it is the
// claimed sender and must match the joined identity when set.
type Command struct {
	Kind        CommandKind
	UserID      int64
	MessageID   int64
	ScheduledID int64
	ReceiverID  int64
	Content     string
	MessageKind store.MessageKind
	Timestamp   *time.Time
	Status      store.MessageStatus
	ScheduledAt time.Time
}
