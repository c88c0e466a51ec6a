package proto

import (
	"time"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// MessageView is the client-facing projection of a message, shared by live
// events and REST history. Content is null for deleted messages.
type MessageView struct {
	ID         int64      `json:"id"`
	SenderID   int64      `json:"sender_id"`
	ReceiverID int64      `json:"receiver_id"`
	Content    *string    `json:"content"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	Edited     bool       `json:"edited"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	Deleted    bool       `json:"deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewMessageView projects a stored message.
func NewMessageView(m *store.Message) MessageView {
	v := MessageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Type:       string(m.Kind),
		Status:     string(m.Status),
		Edited:     m.Edited,
		EditedAt:   m.EditedAt,
		Deleted:    m.Deleted,
		DeletedAt:  m.DeletedAt,
		Timestamp:  m.Timestamp,
	}
	if !m.Deleted {
		content := m.Content
		v.Content = &content
	}
	return v
}

// ScheduledView is the client-facing projection of a scheduled message.
type ScheduledView struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	ReceiverID  int64     `json:"receiver_id"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	MessageID   *int64    `json:"message_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewScheduledView projects a stored scheduled message.
func NewScheduledView(sm *store.ScheduledMessage) ScheduledView {
	return ScheduledView{
		ID:          sm.ID,
		SenderID:    sm.SenderID,
		ReceiverID:  sm.ReceiverID,
		Content:     sm.Content,
		Type:        string(sm.Kind),
		ScheduledAt: sm.ScheduledAt,
		Status:      string(sm.Status),
		MessageID:   sm.MessageID,
		CreatedAt:   sm.CreatedAt,
	}
}
