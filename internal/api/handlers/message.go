package handlers

import (
	"encoding/json"
	"net/http"

	"chat-sync/internal/api/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/services"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// ListMessages godoc
// @Summary List the caller's messages
// @Description Messages sent or received by the caller, oldest first, with sender and receiver embedded
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Message
// @Router /messages [get]
func (h *MessageHandler) ListMessages(c *gin.Context) {
	msgs, err := h.service.List(c.Request.Context(), middleware.Viewer(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// SendMessage godoc
// @Summary Send a message to a friend
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse "No accepted relationship with the receiver"
// @Router /messages [post]
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	msg, err := h.service.Send(c.Request.Context(), middleware.Viewer(c).ID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkSeen godoc
// @Summary Mark a sender's messages as seen
// @Description Marks every unseen message from sender_id to the caller. Matching nothing is not an error.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.MarkSeenRequest true "Sender"
// @Success 200 {object} models.MarkSeenResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /messages [patch]
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	var req models.MarkSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	n, err := h.service.MarkSeen(c.Request.Context(), middleware.Viewer(c).ID, req.SenderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MarkSeenResponse{Updated: n})
}

// UpdateMessage godoc
// @Summary Update one message
// @Description Only content, media_url and seen may be present; seen can only become true
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param request body models.MessageUpdate true "Fields to change"
// @Success 200 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /messages/{id} [patch]
func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err)
		return
	}

	msg, err := h.service.Update(c.Request.Context(), middleware.Viewer(c).ID, c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
