package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatchat/internal/middleware"
	"github.com/goatkit/goatchat/internal/models"
	"github.com/goatkit/goatchat/internal/realtime"
)

// handleHealth returns API health status.
func (router *APIRouter) handleHealth(c *gin.Context) {
	sendSuccess(c, gin.H{
		"status":    "healthy",
		"service":   "goatchat-api",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
	})
}

// handleWebSocket upgrades the connection and hands it to the hub. Identity
// comes from the middleware; browser clients pass the token as a query
// parameter.
func (router *APIRouter) handleWebSocket(c *gin.Context) {
	userID, userName, role := callerIdentity(c)
	id := realtime.Identity{UserID: userID, UserName: userName, Role: role}

	if err := router.hub.ServeWS(c.Writer, c.Request, id, router.typing); err != nil {
		router.logger.Printf("websocket upgrade failed for %s: %v", userID, err)
	}
}

// senderRoleFor maps the surface role onto a message sender role. Admin
// actions run with system authority.
func senderRoleFor(role string) models.SenderRole {
	switch role {
	case middleware.RoleAgent:
		return models.RoleAgent
	case middleware.RoleAdmin:
		return models.RoleSystem
	default:
		return models.RoleContact
	}
}
