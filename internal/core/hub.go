package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Hub runs live sessions: each registered client gets a worker that consumes
// its commands in order, so a slow ledger write only delays that session.
type Hub struct {
	engine    *Engine
	fanout    *Fanout
	registry  *Registry
	scheduler ScheduleService
	log       *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	inflight   sync.WaitGroup
}

// NewHub creates a hub. scheduler may be nil when scheduling is disabled.
func NewHub(engine *Engine, scheduler ScheduleService, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		engine:     engine,
		fanout:     engine.fanout,
		registry:   engine.fanout.Registry(),
		scheduler:  scheduler,
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Registry exposes the connection registry the hub binds sessions in.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run processes registrations until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	workers := make(map[*Client]context.CancelFunc)
	for {
		select {
		case c := <-h.register:
			if _, exists := workers[c]; exists {
				continue
			}
			wctx, cancel := context.WithCancel(ctx)
			workers[c] = cancel
			h.inflight.Add(1)
			go func() {
				defer h.inflight.Done()
				h.serve(wctx, c)
			}()
		case c := <-h.unregister:
			if cancel, ok := workers[c]; ok {
				cancel()
				delete(workers, c)
			}
		case <-ctx.Done():
			identities, sessions := h.registry.Stats()
			h.log.Info().Int("identities", identities).Int("sessions", sessions).Msg("hub stopping")
			for c, cancel := range workers {
				cancel()
				h.registry.Unregister(c)
			}
			h.inflight.Wait()
			return
		}
	}
}

// RegisterClient starts a worker for the client. Commands are ignored until
// the client joins an identity.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient drops the client from the registry right away and stops
// its worker. A command already being processed is allowed to finish.
func (h *Hub) UnregisterClient(c *Client) {
	if userID, ok := h.registry.Unregister(c); ok {
		h.log.Debug().Str("client_id", c.ID).Int64("user_id", userID).Msg("session unregistered")
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) serve(ctx context.Context, c *Client) {
	// The worker is the only source of joins for c.
	defer h.registry.Forget(c)

	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			if cmd == nil {
				continue
			}
			h.handle(ctx, c, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	// Disconnect must not abort a write that already started.
	opCtx := context.WithoutCancel(ctx)

	if cmd.Kind == CommandJoin {
		h.join(c, cmd)
		return
	}

	op := opFor(cmd.Kind)
	userID, ok := h.registry.IdentityOf(c)
	if !ok {
		h.replyErr(c, op, ErrNotJoined)
		return
	}
	if cmd.UserID != 0 && cmd.UserID != userID {
		h.replyErr(c, op, ErrUnauthorized)
		return
	}

	switch cmd.Kind {
	case CommandSendMessage:
		_, err := h.engine.Create(opCtx, Draft{
			SenderID:   userID,
			ReceiverID: cmd.ReceiverID,
			Content:    cmd.Content,
			Kind:       cmd.MessageKind,
			Timestamp:  cmd.Timestamp,
			Origin:     c,
		})
		if err != nil {
			h.replyErr(c, op, err)
		}
	case CommandEditMessage:
		if _, err := h.engine.Edit(opCtx, cmd.MessageID, userID, cmd.Content); err != nil {
			h.replyErr(c, op, err)
		}
	case CommandDeleteMessage:
		if _, err := h.engine.DeleteForEveryone(opCtx, cmd.MessageID, userID); err != nil {
			h.replyErr(c, op, err)
		}
	case CommandMarkStatus:
		if _, err := h.engine.Acknowledge(opCtx, cmd.MessageID, userID, cmd.Status); err != nil {
			h.replyErr(c, op, err)
		}
	case CommandScheduleMessage:
		if h.scheduler == nil {
			h.replyErr(c, op, ErrUnavailable)
			return
		}
		_, err := h.scheduler.Schedule(opCtx, ScheduleRequest{
			SenderID:   userID,
			ReceiverID: cmd.ReceiverID,
			Content:    cmd.Content,
			Kind:       cmd.MessageKind,
			At:         cmd.ScheduledAt,
		})
		if err != nil {
			h.replyErr(c, op, err)
		}
	case CommandCancelScheduled:
		if h.scheduler == nil {
			h.replyErr(c, op, ErrUnavailable)
			return
		}
		if _, err := h.scheduler.Cancel(opCtx, cmd.ScheduledID, userID); err != nil {
			h.replyErr(c, op, err)
		}
	default:
		h.replyErr(c, op, badRequest("unknown command"))
	}
}

func (h *Hub) join(c *Client, cmd *Command) {
	if cmd.UserID <= 0 {
		h.replyErr(c, OpJoin, badRequest("user id is required"))
		return
	}
	if !h.registry.Register(cmd.UserID, c) {
		return
	}
	h.log.Debug().Str("client_id", c.ID).Int64("user_id", cmd.UserID).Msg("session joined")
	h.fanout.Reply(c, &Event{Kind: EventJoined, UserID: cmd.UserID})
}

func (h *Hub) replyErr(c *Client, op Op, err error) {
	ce := ToCoreError(err)
	if ce.Code == ErrCodeStorage {
		h.log.Error().Err(err).Str("client_id", c.ID).Str("op", string(op)).Msg("operation failed")
	} else {
		h.log.Debug().Err(err).Str("client_id", c.ID).Str("op", string(op)).Msg("operation rejected")
	}
	h.fanout.Reply(c, &Event{Kind: EventError, Op: op, Error: ce})
}

func opFor(kind CommandKind) Op {
	switch kind {
	case CommandJoin:
		return OpJoin
	case CommandEditMessage:
		return OpEdit
	case CommandDeleteMessage:
		return OpDelete
	case CommandMarkStatus:
		return OpStatus
	case CommandScheduleMessage, CommandCancelScheduled:
		return OpSchedule
	default:
		return OpMessage
	}
}
