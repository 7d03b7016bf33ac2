package handlers

import (
	"net/http"

	"chat-sync/internal/api/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/services"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

type RelationshipHandler struct {
	service *services.RelationshipService
}

func NewRelationshipHandler(service *services.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{service: service}
}

// ListRelationships godoc
// @Summary List the caller's relationships
// @Description Every edge touching the caller, with sender, user and friend profiles embedded
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Relationship
// @Router /relationships [get]
func (h *RelationshipHandler) ListRelationships(c *gin.Context) {
	rels, err := h.service.List(c.Request.Context(), middleware.Viewer(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rels)
}

// SendRequest godoc
// @Summary Send a friend request
// @Tags relationships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateRelationshipRequest true "Target user"
// @Success 201 {object} models.Relationship
// @Failure 400 {object} models.ErrorResponse "Malformed identifier"
// @Failure 404 {object} models.ErrorResponse "Unknown user"
// @Failure 409 {object} models.ErrorResponse "An edge already exists; status holds its current status"
// @Router /relationships [post]
func (h *RelationshipHandler) SendRequest(c *gin.Context) {
	var req models.CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	rel, err := h.service.SendRequest(c.Request.Context(), middleware.Viewer(c).ID, req.FriendID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, rel)
}

// UpdateRelationship godoc
// @Summary Change a relationship's status
// @Description pending->accepted by the receiver, accepted->blocked by either participant
// @Tags relationships
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Relationship ID"
// @Param request body models.UpdateRelationshipRequest true "New status"
// @Success 200 {object} models.Relationship
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /relationships/{id} [patch]
func (h *RelationshipHandler) UpdateRelationship(c *gin.Context) {
	var req models.UpdateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	rel, err := h.service.Transition(c.Request.Context(), middleware.Viewer(c).ID, c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// DeleteRelationship godoc
// @Summary Remove a relationship
// @Tags relationships
// @Produce json
// @Security BearerAuth
// @Param id path string true "Relationship ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /relationships/{id} [delete]
func (h *RelationshipHandler) DeleteRelationship(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Remove(c.Request.Context(), middleware.Viewer(c).ID, id); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "deleted"})
}
