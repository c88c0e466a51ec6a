package core

import (
	"time"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// Draft holds the caller-supplied fields of a new message.
type Draft struct {
	SenderID   int64
	ReceiverID int64
	Content    string
	Kind       store.MessageKind
	Timestamp  *time.Time // optional client timestamp

	// Origin is the session that issued the send; it gets the message_sent echo.
	Origin *Client
}

// normalizeKind defaults an empty kind to text and rejects kinds a client may not send.
func normalizeKind(kind store.MessageKind) (store.MessageKind, error) {
	switch kind {
	case "":
		return store.MessageKindText, nil
	case store.MessageKindText, store.MessageKindMedia:
		return kind, nil
	default:
		return "", badRequest("unsupported message kind " + string(kind))
	}
}
