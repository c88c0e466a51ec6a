package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// ScheduledHandlers provides HTTP handlers for scheduled messages.
type ScheduledHandlers struct {
	scheduler core.ScheduleService
	log       *zerolog.Logger
}

// NewScheduledHandlers creates a new scheduled handlers instance.
func NewScheduledHandlers(scheduler core.ScheduleService, logger *zerolog.Logger) *ScheduledHandlers {
	return &ScheduledHandlers{
		scheduler: scheduler,
		log:       logger,
	}
}

// ScheduleMessageRequest represents the schedule request body.
type ScheduleMessageRequest struct {
	ReceiverID  int64     `json:"receiver_id" binding:"required,gt=0"`
	Content     string    `json:"content"`
	Type        string    `json:"type" binding:"omitempty,oneof=text media"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

func (h *ScheduledHandlers) available(c *gin.Context) bool {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "scheduling is disabled"})
		return false
	}
	return true
}

// Create schedules a message from the caller.
// POST /api/scheduled
func (h *ScheduledHandlers) Create(c *gin.Context) {
	uid, ok := requireCaller(c)
	if !ok || !h.available(c) {
		return
	}

	var req ScheduleMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid schedule request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sm, err := h.scheduler.Schedule(c.Request.Context(), core.ScheduleRequest{
		SenderID:   uid,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Kind:       store.MessageKind(req.Type),
		At:         req.ScheduledAt,
	})
	if err != nil {
		writeCoreError(c, h.log, err, "internal server error")
		return
	}

	c.JSON(http.StatusCreated, proto.NewScheduledView(sm))
}

// List returns the caller's pending scheduled messages.
// GET /api/scheduled
func (h *ScheduledHandlers) List(c *gin.Context) {
	uid, ok := requireCaller(c)
	if !ok || !h.available(c) {
		return
	}

	pending, err := h.scheduler.ListPending(c.Request.Context(), uid)
	if err != nil {
		writeCoreError(c, h.log, err, "internal server error")
		return
	}

	c.JSON(http.StatusOK, lo.Map(pending, func(sm *store.ScheduledMessage, _ int) proto.ScheduledView {
		return proto.NewScheduledView(sm)
	}))
}

// Cancel cancels a pending scheduled message of the caller.
// DELETE /api/scheduled/:id
func (h *ScheduledHandlers) Cancel(c *gin.Context) {
	uid, ok := requireCaller(c)
	if !ok || !h.available(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid scheduled id"})
		return
	}

	sm, err := h.scheduler.Cancel(c.Request.Context(), id, uid)
	if err != nil {
		writeCoreError(c, h.log, err, "internal server error")
		return
	}

	c.JSON(http.StatusOK, proto.NewScheduledView(sm))
}
