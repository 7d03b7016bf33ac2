package handlers

import (
	"chat-sync/internal/api/middleware"
	"chat-sync/internal/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
}

func NewWSHandler(hub *websocket.Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{hub: hub, upgrader: websocket.NewUpgrader(allowedOrigins)}
}

// HandleWebSocket godoc
// @Summary Change notification stream
// @Description Upgrades to a websocket that receives {type:"change", table, timestamp} events
// @Tags websocket
// @Param token query string false "Bearer token when the Authorization header cannot be set"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWS(h.hub, &h.upgrader, c.Writer, c.Request, middleware.Viewer(c).ID)
}
