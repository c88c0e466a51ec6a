package scheduled

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// Service provides scheduled message business logic.
// It implements core.ScheduleService.
type Service struct {
	store  store.ScheduledStore
	fanout *core.Fanout
	log    *zerolog.Logger
}

var _ core.ScheduleService = (*Service)(nil)

// New creates a new scheduled message service.
// fanout may be nil when no live sessions need acknowledgements.
func New(st store.ScheduledStore, fanout *core.Fanout, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:  st,
		fanout: fanout,
		log:    logger,
	}
}

// Schedule stores a pending message. A due time in the past is allowed and
// is picked up by the next dispatcher run.
func (s *Service) Schedule(ctx context.Context, req core.ScheduleRequest) (*store.ScheduledMessage, error) {
	if req.SenderID <= 0 || req.ReceiverID <= 0 {
		return nil, fmt.Errorf("%w: sender and receiver are required", core.ErrBadRequest)
	}
	if req.At.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", core.ErrBadRequest)
	}

	kind := req.Kind
	switch kind {
	case "":
		kind = store.MessageKindText
	case store.MessageKindText, store.MessageKindMedia:
	default:
		return nil, fmt.Errorf("%w: unsupported message kind %s", core.ErrBadRequest, kind)
	}

	sm := &store.ScheduledMessage{
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		Kind:        kind,
		ScheduledAt: req.At,
	}
	if err := s.store.AppendScheduled(ctx, sm); err != nil {
		return nil, fmt.Errorf("schedule message: %w: %w", core.ErrStorage, err)
	}

	s.log.Debug().
		Int64("scheduled_id", sm.ID).
		Int64("user_id", sm.SenderID).
		Time("scheduled_at", sm.ScheduledAt).
		Msg("message scheduled")
	s.notify(sm.SenderID, core.EventScheduledCreated, sm)
	return sm, nil
}

// Cancel finalizes a pending entry owned by requester as cancelled.
func (s *Service) Cancel(ctx context.Context, scheduledID, requester int64) (*store.ScheduledMessage, error) {
	sm, err := s.store.MarkScheduledCancelled(ctx, scheduledID, requester)
	if err != nil {
		if !errors.Is(err, store.ErrConditionFailed) {
			return nil, fmt.Errorf("cancel scheduled: %w: %w", core.ErrStorage, err)
		}
		return nil, s.explainRejected(ctx, scheduledID, requester)
	}

	s.notify(sm.SenderID, core.EventScheduledCancelled, sm)
	return sm, nil
}

func (s *Service) explainRejected(ctx context.Context, scheduledID, requester int64) error {
	current, err := s.store.GetScheduled(ctx, scheduledID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("cancel scheduled %d: %w", scheduledID, core.ErrNotFound)
		}
		return fmt.Errorf("cancel scheduled: %w: %w", core.ErrStorage, err)
	}
	if current.SenderID != requester {
		return fmt.Errorf("cancel scheduled %d: %w", scheduledID, core.ErrUnauthorized)
	}
	return fmt.Errorf("cancel scheduled %d (%s): %w", scheduledID, current.Status, core.ErrAlreadyFinalized)
}

// ListPending returns the pending entries created by senderID, earliest first.
func (s *Service) ListPending(ctx context.Context, senderID int64) ([]*store.ScheduledMessage, error) {
	pending, err := s.store.ListScheduled(ctx, senderID, store.ScheduledStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w: %w", core.ErrStorage, err)
	}
	return pending, nil
}

func (s *Service) notify(userID int64, kind core.EventKind, sm *store.ScheduledMessage) {
	if s.fanout == nil {
		return
	}
	s.fanout.Publish(userID, &core.Event{Kind: kind, Scheduled: sm})
}
