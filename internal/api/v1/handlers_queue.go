package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatchat/internal/apierrors"
	"github.com/goatkit/goatchat/internal/models"
)

// handleAcceptNext claims the longest-waiting session for the calling
// agent.
func (router *APIRouter) handleAcceptNext(c *gin.Context) {
	userID, userName, _ := callerIdentity(c)
	session, err := router.service.AcceptNext(c.Request.Context(), userID, userName)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"session": session})
}

// handleChatQueue returns the waiting queue with live waiting times.
func (router *APIRouter) handleChatQueue(c *gin.Context) {
	items, err := router.service.ListQueue(c.Request.Context())
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"queue": items, "total": len(items)})
}

// activeChatItem is one assigned session with its thread activity summary.
type activeChatItem struct {
	Session       *models.ChatSession `json:"session"`
	UnreadCount   int                 `json:"unread_count"`
	LastMessageAt *time.Time          `json:"last_message_at,omitempty"`
}

// handleActiveChats returns the caller's assigned sessions with unread
// counts and last activity.
func (router *APIRouter) handleActiveChats(c *gin.Context) {
	userID, _, role := callerIdentity(c)
	sessions, err := router.service.ListActiveForAgent(c.Request.Context(), userID)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	items := make([]activeChatItem, 0, len(sessions))
	for _, session := range sessions {
		item := activeChatItem{Session: session}
		unread, err := router.messages.UnreadCount(c.Request.Context(), session.ThreadID, userID, senderRoleFor(role))
		if err != nil {
			router.logger.Printf("failed to count unread for thread %s: %v", session.ThreadID, err)
		} else {
			item.UnreadCount = unread
		}
		lastAt, err := router.messages.LastMessageAt(c.Request.Context(), session.ThreadID, userID, senderRoleFor(role))
		if err != nil {
			router.logger.Printf("failed to resolve last activity for thread %s: %v", session.ThreadID, err)
		} else if !lastAt.IsZero() {
			item.LastMessageAt = &lastAt
		}
		items = append(items, item)
	}
	sendSuccess(c, gin.H{"items": items, "total": len(items)})
}

// handleSetAvailability updates the caller's availability and concurrency
// limit.
func (router *APIRouter) handleSetAvailability(c *gin.Context) {
	var req struct {
		IsAvailable        *bool `json:"is_available" binding:"required"`
		MaxConcurrentChats int   `json:"max_concurrent_chats" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	userID, userName, _ := callerIdentity(c)
	availability, err := router.registry.SetAvailability(userID, userName, *req.IsAvailable, req.MaxConcurrentChats)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"availability": availability})
}

// handleListAvailability returns all known agents and their load.
func (router *APIRouter) handleListAvailability(c *gin.Context) {
	snapshot := router.registry.Snapshot()
	sendSuccess(c, gin.H{"agents": snapshot, "total": len(snapshot)})
}
