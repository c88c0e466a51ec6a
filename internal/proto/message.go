package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin            = "join"
	InboundTypeJoinUser        = "join_user" // legacy alias, data may be a bare user id
	InboundTypePrivateMessage  = "private_message"
	InboundTypeEditMessage     = "edit_message"
	InboundTypeDeleteForAll    = "delete_for_everyone"
	InboundTypeMarkStatus      = "mark_status"
	InboundTypeScheduleMessage = "schedule_message"
	InboundTypeCancelScheduled = "cancel_scheduled"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventJoined             = "joined"
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventMessageEdited      = "message_edited"
	EventMessageDeleted     = "message_deleted"
	EventMessageStatus      = "message_status"
	EventScheduledCreated   = "scheduled_created"
	EventScheduledCancelled = "scheduled_cancelled"
)

// JoinData binds the connection to an identity. Token is required when the
// server enforces JWT; otherwise UserID is trusted.
type JoinData struct {
	UserID   int64  `json:"user_id" validate:"omitempty,gt=0"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// PrivateMessageData is a new message from the client.
// SenderID is optional and must match the joined identity when set.
type PrivateMessageData struct {
	SenderID   int64      `json:"sender_id,omitempty" validate:"omitempty,gt=0"`
	ReceiverID int64      `json:"receiver_id" validate:"required,gt=0"`
	Content    string     `json:"content"`
	Type       string     `json:"type,omitempty" validate:"omitempty,oneof=text media"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// EditMessageData replaces the content of an own message.
type EditMessageData struct {
	MessageID  int64  `json:"message_id" validate:"required,gt=0"`
	SenderID   int64  `json:"sender_id,omitempty" validate:"omitempty,gt=0"`
	NewContent string `json:"new_content"`
}

// DeleteData deletes an own message for everyone.
type DeleteData struct {
	MessageID int64 `json:"message_id" validate:"required,gt=0"`
	SenderID  int64 `json:"sender_id,omitempty" validate:"omitempty,gt=0"`
}

// MarkStatusData is a delivery or read receipt from the receiver.
type MarkStatusData struct {
	MessageID int64  `json:"message_id" validate:"required,gt=0"`
	Status    string `json:"status" validate:"required,oneof=delivered seen"`
}

// ScheduleData defers a message until ScheduledAt.
type ScheduleData struct {
	SenderID    int64     `json:"sender_id,omitempty" validate:"omitempty,gt=0"`
	ReceiverID  int64     `json:"receiver_id" validate:"required,gt=0"`
	Content     string    `json:"content"`
	Type        string    `json:"type,omitempty" validate:"omitempty,oneof=text media"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// CancelScheduledData cancels a pending scheduled message.
type CancelScheduledData struct {
	ScheduledID int64 `json:"scheduled_id" validate:"required,gt=0"`
	SenderID    int64 `json:"sender_id,omitempty" validate:"omitempty,gt=0"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventJoinedData confirms the bound identity.
type EventJoinedData struct {
	UserID   int64 `json:"user_id"`
	Protocol int   `json:"protocol"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
