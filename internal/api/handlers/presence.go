package handlers

import (
	"context"
	"net/http"

	"chat-sync/internal/api/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/relation"
	"chat-sync/internal/services"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

// OnlineLister reports which users hold a live websocket connection.
type OnlineLister interface {
	GetOnlineUsers(ctx context.Context) ([]string, error)
}

type PresenceHandler struct {
	presence      OnlineLister
	relationships *services.RelationshipService
}

func NewPresenceHandler(presence OnlineLister, relationships *services.RelationshipService) *PresenceHandler {
	return &PresenceHandler{presence: presence, relationships: relationships}
}

// GetOnlineFriends godoc
// @Summary List online friends
// @Description Returns the ids of accepted friends that currently hold a websocket connection.
// @Tags presence
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.PresenceResponse
// @Failure 503 {object} models.ErrorResponse "Presence tracking not configured"
// @Router /presence [get]
func (h *PresenceHandler) GetOnlineFriends(c *gin.Context) {
	if h.presence == nil {
		response.Abort(c, http.StatusServiceUnavailable, "presence tracking is not configured")
		return
	}

	viewer := middleware.Viewer(c)
	rels, err := h.relationships.List(c.Request.Context(), viewer.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	online, err := h.presence.GetOnlineUsers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	isOnline := make(map[string]bool, len(online))
	for _, id := range online {
		isOnline[id] = true
	}
	friends := make([]string, 0)
	for _, rel := range rels {
		if rel.Status != relation.StatusAccepted {
			continue
		}
		other := rel.FriendID
		if other == viewer.ID {
			other = rel.UserID
		}
		if isOnline[other] {
			friends = append(friends, other)
		}
	}

	c.JSON(http.StatusOK, models.PresenceResponse{Online: friends})
}
