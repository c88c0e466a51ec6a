package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// Ledger is the storage the engine mutates.
type Ledger interface {
	store.MessageStore
	PromoteScheduled(ctx context.Context, id int64, msg *store.Message) error
}

// Engine applies message mutations under ownership and state rules and
// announces every successful mutation through the fanout before returning.
type Engine struct {
	ledger Ledger
	fanout *Fanout
	policy StatusPolicy
	log    *zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a mutation engine. A nil policy means ManualStatusPolicy.
func NewEngine(ledger Ledger, fanout *Fanout, policy StatusPolicy, logger *zerolog.Logger) *Engine {
	if policy == nil {
		policy = ManualStatusPolicy{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Engine{
		ledger: ledger,
		fanout: fanout,
		policy: policy,
		log:    logger,
		now:    time.Now,
	}
}

// Create persists a new message with status sent, notifies the receiver and
// acknowledges the send to d.Origin. The status policy runs after the
// acknowledgment, so the sender never sees a receipt before its own echo.
// Empty content is allowed for media placeholders.
func (e *Engine) Create(ctx context.Context, d Draft) (*store.Message, error) {
	if d.SenderID <= 0 || d.ReceiverID <= 0 {
		return nil, badRequest("sender and receiver are required")
	}
	kind, err := normalizeKind(d.Kind)
	if err != nil {
		return nil, err
	}

	ts := e.now()
	if d.Timestamp != nil && !d.Timestamp.IsZero() {
		ts = *d.Timestamp
	}

	msg := &store.Message{
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Content:    d.Content,
		Kind:       kind,
		Status:     store.MessageStatusSent,
		Timestamp:  ts,
	}
	if err := e.ledger.AppendMessage(ctx, msg); err != nil {
		return nil, storageErr("append message", err)
	}

	reached := e.fanout.Publish(msg.ReceiverID, &Event{Kind: EventMessageCreated, Message: msg})
	if d.Origin != nil {
		e.fanout.Reply(d.Origin, &Event{Kind: EventMessageSent, Message: msg})
	}
	return e.applyPolicy(ctx, msg, reached), nil
}

// Promote moves a due scheduled message into the ledger exactly once and
// delivers it like a live send. The sender's sessions get a sent acknowledgment.
func (e *Engine) Promote(ctx context.Context, sm *store.ScheduledMessage) (*store.Message, error) {
	if sm.Status != store.ScheduledStatusPending {
		return nil, fmt.Errorf("promote scheduled %d: %w", sm.ID, ErrAlreadyFinalized)
	}

	msg := &store.Message{
		SenderID:   sm.SenderID,
		ReceiverID: sm.ReceiverID,
		Content:    sm.Content,
		Kind:       sm.Kind,
		Status:     store.MessageStatusSent,
		Timestamp:  e.now(),
	}
	if msg.Kind == "" {
		msg.Kind = store.MessageKindText
	}
	if err := e.ledger.PromoteScheduled(ctx, sm.ID, msg); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, fmt.Errorf("promote scheduled %d: %w", sm.ID, ErrAlreadyFinalized)
		}
		return nil, storageErr("promote scheduled message", err)
	}

	reached := e.fanout.Publish(msg.ReceiverID, &Event{Kind: EventMessageCreated, Message: msg})
	e.fanout.Publish(msg.SenderID, &Event{Kind: EventMessageSent, Message: msg})
	return e.applyPolicy(ctx, msg, reached), nil
}

// applyPolicy advances msg when the status policy asks for it and returns the
// latest record.
func (e *Engine) applyPolicy(ctx context.Context, msg *store.Message, reached int) *store.Message {
	if !e.policy.MarkDelivered(msg, reached) {
		return msg
	}
	advanced, err := e.AdvanceStatus(ctx, msg.ID, store.MessageStatusDelivered)
	if err != nil {
		e.log.Debug().Err(err).Int64("message_id", msg.ID).Msg("auto delivery status not applied")
		return msg
	}
	return advanced
}

// Edit replaces the content of a message owned by requester.
// The ownership and deletion checks are part of the conditional update.
func (e *Engine) Edit(ctx context.Context, messageID, requester int64, content string) (*store.Message, error) {
	msg, err := e.ledger.UpdateContent(ctx, messageID, requester, content, e.now())
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			_, explained := e.explainRejected(ctx, "edit message", messageID, requester)
			return nil, explained
		}
		return nil, storageErr("edit message", err)
	}

	e.fanout.PublishTo(&Event{Kind: EventMessageEdited, Message: msg}, msg.SenderID, msg.ReceiverID)
	return msg, nil
}

// DeleteForEveryone turns a message owned by requester into a tombstone.
// Deleting an already deleted message succeeds and returns the tombstone; in
// that case only the requester's sessions are re-notified.
func (e *Engine) DeleteForEveryone(ctx context.Context, messageID, requester int64) (*store.Message, error) {
	msg, err := e.ledger.MarkDeleted(ctx, messageID, requester, e.now())
	if err != nil {
		if !errors.Is(err, store.ErrConditionFailed) {
			return nil, storageErr("delete message", err)
		}
		current, explained := e.explainRejected(ctx, "delete message", messageID, requester)
		if !errors.Is(explained, ErrAlreadyDeleted) {
			return nil, explained
		}
		e.fanout.Publish(requester, &Event{Kind: EventMessageDeleted, Message: current})
		return current, nil
	}

	e.fanout.PublishTo(&Event{Kind: EventMessageDeleted, Message: msg}, msg.SenderID, msg.ReceiverID)
	return msg, nil
}

// explainRejected looks at the current record after a conditional update
// matched nothing and returns it with the reason.
func (e *Engine) explainRejected(ctx context.Context, op string, messageID, requester int64) (*store.Message, error) {
	current, err := e.ledger.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fromStoreLookup(op, err)
	}
	switch {
	case current.SenderID != requester:
		return current, fmt.Errorf("%s %d: %w", op, messageID, ErrUnauthorized)
	case current.Deleted:
		return current, fmt.Errorf("%s %d: %w", op, messageID, ErrAlreadyDeleted)
	default:
		return current, fmt.Errorf("%s %d: %w", op, messageID, ErrConflict)
	}
}

// AdvanceStatus moves a message to status, which must be the direct successor
// of its current status.
func (e *Engine) AdvanceStatus(ctx context.Context, messageID int64, status store.MessageStatus) (*store.Message, error) {
	prev, ok := status.Previous()
	if !ok {
		return nil, fmt.Errorf("advance message %d to %q: %w", messageID, status, ErrInvalidTransition)
	}

	msg, err := e.ledger.UpdateStatus(ctx, messageID, prev, status)
	if err != nil {
		if !errors.Is(err, store.ErrConditionFailed) {
			return nil, storageErr("advance status", err)
		}
		current, lookupErr := e.ledger.GetMessage(ctx, messageID)
		if lookupErr != nil {
			return nil, fromStoreLookup("advance status", lookupErr)
		}
		return nil, fmt.Errorf("advance message %d from %s to %s: %w", messageID, current.Status, status, ErrInvalidTransition)
	}

	e.fanout.PublishTo(&Event{Kind: EventMessageStatus, Message: msg}, msg.SenderID, msg.ReceiverID)
	return msg, nil
}

// Acknowledge is the receipt entry point: only the receiver of a message may
// report it as delivered or seen.
func (e *Engine) Acknowledge(ctx context.Context, messageID, requester int64, status store.MessageStatus) (*store.Message, error) {
	current, err := e.ledger.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fromStoreLookup("acknowledge message", err)
	}
	if current.ReceiverID != requester {
		return nil, fmt.Errorf("acknowledge message %d: %w", messageID, ErrUnauthorized)
	}
	return e.AdvanceStatus(ctx, messageID, status)
}

// History returns the thread between two identities in ascending timestamp order.
func (e *Engine) History(ctx context.Context, userA, userB int64) ([]*store.Message, error) {
	if userA <= 0 || userB <= 0 {
		return nil, badRequest("both identities are required")
	}
	messages, err := e.ledger.History(ctx, userA, userB)
	if err != nil {
		return nil, storageErr("load history", err)
	}
	return messages, nil
}
