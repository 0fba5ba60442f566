// Package v1 exposes the chat engine over HTTP and websocket.
package v1

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goatkit/goatchat/internal/agents"
	"github.com/goatkit/goatchat/internal/chat"
	"github.com/goatkit/goatchat/internal/messaging"
	"github.com/goatkit/goatchat/internal/middleware"
	"github.com/goatkit/goatchat/internal/realtime"
)

// APIRouter holds the handler dependencies.
type APIRouter struct {
	service  *chat.Service
	messages *messaging.Router
	registry *agents.Registry
	hub      *realtime.Hub
	typing   *realtime.TypingTracker
	logger   *log.Logger
}

// NewAPIRouter creates the router over the assembled engine.
func NewAPIRouter(service *chat.Service, messages *messaging.Router, registry *agents.Registry, hub *realtime.Hub, typing *realtime.TypingTracker) *APIRouter {
	return &APIRouter{
		service:  service,
		messages: messages,
		registry: registry,
		hub:      hub,
		typing:   typing,
		logger:   log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// RegisterRoutes attaches all routes to the engine.
func (router *APIRouter) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/health", router.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := engine.Group("/ws", middleware.Identity())
	ws.GET("/chat", router.handleWebSocket)

	api := engine.Group("/api/v1/chat", middleware.Identity())
	{
		api.POST("/sessions", middleware.RequireRole(middleware.RoleContact), router.handleStartSession)
		api.GET("/sessions/:id", router.handleGetSession)
		api.POST("/sessions/:id/messages/ai", middleware.RequireRole(middleware.RoleContact), router.handleSendAIMessage)
		api.POST("/sessions/:id/escalate", middleware.RequireRole(middleware.RoleContact), router.handleRequestEscalation)
		api.POST("/sessions/:id/transfer", middleware.RequireRole(middleware.RoleAgent), router.handleTransferChat)
		api.POST("/sessions/:id/end", router.handleEndSession)

		api.POST("/queue/accept", middleware.RequireRole(middleware.RoleAgent), router.handleAcceptNext)
		api.GET("/queue", middleware.RequireRole(middleware.RoleAgent), router.handleChatQueue)
		api.GET("/active", middleware.RequireRole(middleware.RoleAgent), router.handleActiveChats)
		api.PUT("/availability", middleware.RequireRole(middleware.RoleAgent), router.handleSetAvailability)
		api.GET("/availability", middleware.RequireRole(middleware.RoleAgent), router.handleListAvailability)

		api.POST("/threads/:id/messages", router.handlePostMessage)
		api.GET("/threads/:id/messages", router.handleListMessages)
		api.POST("/threads/:id/read", router.handleMarkRead)
		api.GET("/threads/:id/unread", router.handleUnreadCount)
	}
}

// NewMembershipResolver seeds websocket subscriptions from current session
// assignments: contacts get their open session, agents their active ones.
func NewMembershipResolver(service *chat.Service) realtime.MembershipResolver {
	return func(ctx context.Context, id realtime.Identity) ([]realtime.SessionRef, error) {
		switch id.Role {
		case realtime.RoleContact:
			session, err := service.GetOpenByContact(ctx, id.UserID)
			if err != nil {
				return nil, nil
			}
			return []realtime.SessionRef{{SessionID: session.ID, ThreadID: session.ThreadID}}, nil
		case realtime.RoleAgent:
			sessions, err := service.ListActiveForAgent(ctx, id.UserID)
			if err != nil {
				return nil, err
			}
			refs := make([]realtime.SessionRef, 0, len(sessions))
			for _, s := range sessions {
				refs = append(refs, realtime.SessionRef{SessionID: s.ID, ThreadID: s.ThreadID})
			}
			return refs, nil
		}
		return nil, nil
	}
}

func callerIdentity(c *gin.Context) (id, name, role string) {
	return c.GetString(middleware.CtxUserID), c.GetString(middleware.CtxUserName), c.GetString(middleware.CtxUserRole)
}
