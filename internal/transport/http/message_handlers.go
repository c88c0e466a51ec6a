package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message history and receipts.
type MessageHandlers struct {
	engine *core.Engine
	log    *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(engine *core.Engine, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		engine: engine,
		log:    logger,
	}
}

// StatusRequest represents the receipt request body.
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=delivered seen"`
}

// History returns the thread between two identities, oldest first.
// GET /api/messages/:senderId/:receiverId
func (h *MessageHandlers) History(c *gin.Context) {
	a, errA := strconv.ParseInt(c.Param("senderId"), 10, 64)
	b, errB := strconv.ParseInt(c.Param("receiverId"), 10, 64)
	if errA != nil || errB != nil || a <= 0 || b <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	if uid, ok := callerID(c); ok && uid != a && uid != b {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant of this conversation"})
		return
	}

	messages, err := h.engine.History(c.Request.Context(), a, b)
	if err != nil {
		writeCoreError(c, h.log, err, "Failed to load messages")
		return
	}

	c.JSON(http.StatusOK, lo.Map(messages, func(m *store.Message, _ int) proto.MessageView {
		return proto.NewMessageView(m)
	}))
}

// MarkStatus records a delivery or read receipt from the receiver.
// POST /api/messages/:id/status
func (h *MessageHandlers) MarkStatus(c *gin.Context) {
	uid, ok := requireCaller(c)
	if !ok {
		return
	}

	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid status request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.engine.Acknowledge(c.Request.Context(), messageID, uid, store.MessageStatus(req.Status))
	if err != nil {
		writeCoreError(c, h.log, err, "internal server error")
		return
	}

	c.JSON(http.StatusOK, proto.NewMessageView(msg))
}
