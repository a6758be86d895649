package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/proto"
	"github.com/vovakirdan/roomcast/internal/store"
)

// MessageHandlers serves the persistence API in front of the message store.
type MessageHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.MessageStore, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// CreateMessageRequest represents the create message request body.
type CreateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateMessage persists a message and returns its canonical form.
// POST /api/rooms/:room/messages
func (h *MessageHandlers) CreateMessage(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		h.log.Error().Msg("actor not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room := c.Param("room")
	msg, err := h.store.CreateMessage(c.Request.Context(), room, req.Content, actor)
	if err != nil {
		if errors.Is(err, store.ErrInvalidMessage) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("room", room).Msg("failed to create message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store message"})
		return
	}

	h.log.Debug().Str("room", room).Str("message_id", msg.ID).Str("author", actor.ID).Msg("message stored")
	c.JSON(http.StatusCreated, proto.FromCore(msg))
}

// ListMessages returns a room's messages in canonical order.
// GET /api/rooms/:room/messages?limit=N
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	room := c.Param("room")
	msgs, err := h.store.ListMessages(c.Request.Context(), room, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list messages"})
		return
	}

	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, proto.FromCore(m))
	}
	c.JSON(http.StatusOK, out)
}
