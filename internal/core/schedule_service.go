package core

import (
	"context"
	"time"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// ScheduleRequest describes a message to deliver at a later time.
type ScheduleRequest struct {
	SenderID   int64
	ReceiverID int64
	Content    string
	Kind       store.MessageKind
	At         time.Time
}

// ScheduleService abstracts scheduled message handling for the Hub.
// This interface lets the Hub process schedule commands without depending
// on the service layer implementation.
type ScheduleService interface {
	// Schedule stores a pending scheduled message.
	Schedule(ctx context.Context, req ScheduleRequest) (*store.ScheduledMessage, error)

	// Cancel cancels a pending scheduled message owned by requester.
	Cancel(ctx context.Context, scheduledID, requester int64) (*store.ScheduledMessage, error)

	// ListPending lists pending scheduled messages created by senderID.
	ListPending(ctx context.Context, senderID int64) ([]*store.ScheduledMessage, error)
}
