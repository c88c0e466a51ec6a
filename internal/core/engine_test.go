package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

func send(t *testing.T, e *Engine, from, to int64, content string) *store.Message {
	t.Helper()

	msg, err := e.Create(context.Background(), Draft{SenderID: from, ReceiverID: to, Content: content})
	require.NoError(t, err)
	return msg
}

func TestEngineCreateNotifiesReceiverSessions(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)
	alice := connect(e, "alice", 1)
	bobPhone := connect(e, "bob-phone", 2)
	bobLaptop := connect(e, "bob-laptop", 2)

	msg := send(t, e, 1, 2, "hi")

	req.NotZero(msg.ID)
	req.Equal(store.MessageStatusSent, msg.Status)
	req.Equal(store.MessageKindText, msg.Kind)
	for _, c := range []*Client{bobPhone, bobLaptop} {
		ev := mustEvent(t, c.Events, EventMessageCreated)
		req.Equal(msg.ID, ev.Message.ID)
		req.Equal("hi", ev.Message.Content)
	}
	mustNoEvent(t, alice.Events)

	stored, err := st.GetMessage(context.Background(), msg.ID)
	req.NoError(err)
	req.Equal("hi", stored.Content)
}

func TestEngineCreateOfflineReceiverStillPersists(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)

	msg := send(t, e, 1, 2, "are you there?")

	history, err := st.History(context.Background(), 1, 2)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(msg.ID, history[0].ID)
}

func TestEngineCreateValidation(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.Create(ctx, Draft{SenderID: 1, Content: "no receiver"})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = e.Create(ctx, Draft{SenderID: 1, ReceiverID: 2, Kind: store.MessageKindDeleted})
	require.ErrorIs(t, err, ErrBadRequest)

	// Empty content is a valid media placeholder.
	msg, err := e.Create(ctx, Draft{SenderID: 1, ReceiverID: 2, Kind: store.MessageKindMedia})
	require.NoError(t, err)
	require.Equal(t, store.MessageKindMedia, msg.Kind)
}

func TestEngineEditNotifiesBothParties(t *testing.T) {
	req := require.New(t)
	e, _ := newTestEngine(t, nil)
	alice := connect(e, "alice", 1)
	bob := connect(e, "bob", 2)

	msg := send(t, e, 1, 2, "hi")
	mustEvent(t, bob.Events, EventMessageCreated)

	edited, err := e.Edit(context.Background(), msg.ID, 1, "hi there")
	req.NoError(err)
	req.True(edited.Edited)
	req.NotNil(edited.EditedAt)
	req.Equal(msg.Timestamp.Unix(), edited.Timestamp.Unix())

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventMessageEdited)
		req.Equal("hi there", ev.Message.Content)
	}
}

func TestEngineEditByNonOwnerLeavesMessageUnchanged(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)
	alice := connect(e, "alice", 1)

	msg := send(t, e, 1, 2, "original")

	_, err := e.Edit(context.Background(), msg.ID, 2, "forged")
	req.ErrorIs(err, ErrUnauthorized)
	req.Equal(ErrCodeUnauthorized, ToCoreError(err).Code)
	mustNoEvent(t, alice.Events)

	stored, err := st.GetMessage(context.Background(), msg.ID)
	req.NoError(err)
	req.Equal("original", stored.Content)
	req.False(stored.Edited)
}

func TestEngineEditMissingMessage(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, err := e.Edit(context.Background(), 404, 1, "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEngineDeleteIsTerminal(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)
	ctx := context.Background()
	alice := connect(e, "alice", 1)
	bob := connect(e, "bob", 2)

	msg := send(t, e, 1, 2, "secret")
	mustEvent(t, bob.Events, EventMessageCreated)

	// Given a delete for everyone
	tomb, err := e.DeleteForEveryone(ctx, msg.ID, 1)
	req.NoError(err)
	req.True(tomb.Deleted)
	req.Empty(tomb.Content)
	req.Equal(store.MessageKindDeleted, tomb.Kind)
	mustEvent(t, alice.Events, EventMessageDeleted)
	mustEvent(t, bob.Events, EventMessageDeleted)

	// When the sender tries to edit it
	_, err = e.Edit(ctx, msg.ID, 1, "resurrect")

	// Then the tombstone stays
	req.ErrorIs(err, ErrAlreadyDeleted)
	stored, err := st.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.True(stored.Deleted)
	req.Empty(stored.Content)
}

func TestEngineDeleteIsIdempotentForOwner(t *testing.T) {
	req := require.New(t)
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	alice := connect(e, "alice", 1)
	bob := connect(e, "bob", 2)

	msg := send(t, e, 1, 2, "oops")
	first, err := e.DeleteForEveryone(ctx, msg.ID, 1)
	req.NoError(err)
	mustEvent(t, alice.Events, EventMessageDeleted)
	mustEvent(t, bob.Events, EventMessageDeleted)

	second, err := e.DeleteForEveryone(ctx, msg.ID, 1)
	req.NoError(err)
	req.Equal(first.ID, second.ID)
	req.True(second.Deleted)

	// Only the requester is re-notified.
	mustEvent(t, alice.Events, EventMessageDeleted)
	mustNoEvent(t, bob.Events)
}

func TestEngineDeleteByNonOwner(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)
	ctx := context.Background()

	msg := send(t, e, 1, 2, "mine")

	_, err := e.DeleteForEveryone(ctx, msg.ID, 2)
	req.ErrorIs(err, ErrUnauthorized)

	stored, err := st.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.False(stored.Deleted)
	req.Equal("mine", stored.Content)

	_, err = e.DeleteForEveryone(ctx, 404, 1)
	req.ErrorIs(err, ErrNotFound)
}

func TestEngineStatusIsMonotonic(t *testing.T) {
	req := require.New(t)
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	alice := connect(e, "alice", 1)

	msg := send(t, e, 1, 2, "hi")

	// Skipping delivered is rejected.
	_, err := e.AdvanceStatus(ctx, msg.ID, store.MessageStatusSeen)
	req.ErrorIs(err, ErrInvalidTransition)

	delivered, err := e.AdvanceStatus(ctx, msg.ID, store.MessageStatusDelivered)
	req.NoError(err)
	req.Equal(store.MessageStatusDelivered, delivered.Status)
	ev := mustEvent(t, alice.Events, EventMessageStatus)
	req.Equal(store.MessageStatusDelivered, ev.Message.Status)

	// Repeating or going back is rejected.
	_, err = e.AdvanceStatus(ctx, msg.ID, store.MessageStatusDelivered)
	req.ErrorIs(err, ErrInvalidTransition)
	_, err = e.AdvanceStatus(ctx, msg.ID, store.MessageStatusSent)
	req.ErrorIs(err, ErrInvalidTransition)

	seen, err := e.AdvanceStatus(ctx, msg.ID, store.MessageStatusSeen)
	req.NoError(err)
	req.Equal(store.MessageStatusSeen, seen.Status)

	_, err = e.AdvanceStatus(ctx, msg.ID, store.MessageStatus("read"))
	req.ErrorIs(err, ErrInvalidTransition)
}

func TestEngineAcknowledgeRequiresReceiver(t *testing.T) {
	req := require.New(t)
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	msg := send(t, e, 1, 2, "hi")

	_, err := e.Acknowledge(ctx, msg.ID, 1, store.MessageStatusDelivered)
	req.ErrorIs(err, ErrUnauthorized)

	ack, err := e.Acknowledge(ctx, msg.ID, 2, store.MessageStatusDelivered)
	req.NoError(err)
	req.Equal(store.MessageStatusDelivered, ack.Status)

	_, err = e.Acknowledge(ctx, 404, 2, store.MessageStatusDelivered)
	req.ErrorIs(err, ErrNotFound)
}

func TestEngineAutoDeliverPolicy(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, AutoDeliverPolicy{})
	ctx := context.Background()
	alice := connect(e, "alice", 1)
	connect(e, "bob", 2)

	// Receiver online: delivered right away.
	online := send(t, e, 1, 2, "hi")
	req.Equal(store.MessageStatusDelivered, online.Status)
	stored, err := st.GetMessage(ctx, online.ID)
	req.NoError(err)
	req.Equal(store.MessageStatusDelivered, stored.Status)
	mustEvent(t, alice.Events, EventMessageStatus)

	// Receiver offline: stays sent.
	offline := send(t, e, 1, 3, "later")
	stored, err = st.GetMessage(ctx, offline.ID)
	req.NoError(err)
	req.Equal(store.MessageStatusSent, stored.Status)
}

func TestEnginePromoteHappensOnce(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)
	ctx := context.Background()
	alice := connect(e, "alice", 1)
	bob := connect(e, "bob", 2)

	sm := &store.ScheduledMessage{SenderID: 1, ReceiverID: 2, Content: "happy birthday", ScheduledAt: time.Now().Add(-time.Second)}
	req.NoError(st.AppendScheduled(ctx, sm))

	msg, err := e.Promote(ctx, sm)
	req.NoError(err)
	req.Equal(store.MessageKindText, msg.Kind)
	req.Equal(msg.ID, mustEvent(t, bob.Events, EventMessageCreated).Message.ID)
	req.Equal(msg.ID, mustEvent(t, alice.Events, EventMessageSent).Message.ID)

	// The row passed in is stale; the ledger refuses the second promotion.
	_, err = e.Promote(ctx, sm)
	req.ErrorIs(err, ErrAlreadyFinalized)
	mustNoEvent(t, bob.Events)

	history, err := e.History(ctx, 1, 2)
	req.NoError(err)
	req.Len(history, 1)
}

func TestEngineAutoDeliverAcksSenderFirst(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, AutoDeliverPolicy{})
	ctx := context.Background()
	aliceLaptop := connect(e, "alice-laptop", 1)
	alicePhone := connect(e, "alice-phone", 1)
	connect(e, "bob", 2)

	// Given a live send from the laptop
	msg, err := e.Create(ctx, Draft{SenderID: 1, ReceiverID: 2, Content: "hi", Origin: aliceLaptop})
	req.NoError(err)

	// Then the laptop sees its echo before the delivery receipt
	first := nextEvent(t, aliceLaptop.Events)
	req.Equal(EventMessageSent, first.Kind)
	req.Equal(store.MessageStatusSent, first.Message.Status)
	second := nextEvent(t, aliceLaptop.Events)
	req.Equal(EventMessageStatus, second.Kind)
	req.Equal(store.MessageStatusDelivered, second.Message.Status)

	// And the other session only gets the receipt
	req.Equal(EventMessageStatus, nextEvent(t, alicePhone.Events).Kind)
	mustNoEvent(t, alicePhone.Events)

	// When a scheduled message is promoted
	sm := &store.ScheduledMessage{SenderID: 1, ReceiverID: 2, Content: "later", ScheduledAt: time.Now().Add(-time.Second)}
	req.NoError(st.AppendScheduled(ctx, sm))
	promoted, err := e.Promote(ctx, sm)
	req.NoError(err)
	req.NotEqual(msg.ID, promoted.ID)
	req.Equal(store.MessageStatusDelivered, promoted.Status)

	// Then every sender session gets the sent echo before the receipt
	for _, c := range []*Client{aliceLaptop, alicePhone} {
		ev := nextEvent(t, c.Events)
		req.Equal(EventMessageSent, ev.Kind)
		req.Equal(promoted.ID, ev.Message.ID)
		req.Equal(EventMessageStatus, nextEvent(t, c.Events).Kind)
	}
}

func TestEngineHistoryUsesClientTimestamps(t *testing.T) {
	req := require.New(t)
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	later, earlier := base.Add(time.Minute), base
	_, err := e.Create(ctx, Draft{SenderID: 1, ReceiverID: 2, Content: "second", Timestamp: &later})
	req.NoError(err)
	_, err = e.Create(ctx, Draft{SenderID: 2, ReceiverID: 1, Content: "first", Timestamp: &earlier})
	req.NoError(err)

	history, err := e.History(ctx, 2, 1)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("first", history[0].Content)
	req.Equal("second", history[1].Content)

	_, err = e.History(ctx, 0, 1)
	req.ErrorIs(err, ErrBadRequest)
}

func TestEngineStorageFailureIsReportedGenerically(t *testing.T) {
	req := require.New(t)
	e, st := newTestEngine(t, nil)
	req.NoError(st.Close())

	_, err := e.Create(context.Background(), Draft{SenderID: 1, ReceiverID: 2, Content: "hi"})
	req.ErrorIs(err, ErrStorage)
	req.True(IsStorageFailure(err))

	ce := ToCoreError(err)
	req.Equal(ErrCodeStorage, ce.Code)
	req.Equal("internal error", ce.Message)
}
