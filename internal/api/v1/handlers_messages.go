package v1

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatchat/internal/apierrors"
	"github.com/goatkit/goatchat/internal/messaging"
	"github.com/goatkit/goatchat/internal/models"
)

// handlePostMessage appends a message to a thread during an active human
// conversation (the AI path goes through /messages/ai).
func (router *APIRouter) handlePostMessage(c *gin.Context) {
	var req struct {
		Content     string                 `json:"content"`
		ContentType string                 `json:"content_type"`
		Attachments []models.AttachmentRef `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	userID, userName, role := callerIdentity(c)
	msg, err := router.messages.PostMessage(c.Request.Context(), c.Param("id"), messaging.Sender{
		ID:   userID,
		Name: userName,
		Role: senderRoleFor(role),
	}, messaging.PostInput{
		Content:     req.Content,
		ContentType: req.ContentType,
		Attachments: req.Attachments,
	})
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendCreated(c, gin.H{"message": msg})
}

// handleListMessages returns the thread in creation order.
func (router *APIRouter) handleListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierrors.Error(c, apierrors.CodeInvalidRequest)
			return
		}
		limit = n
	}

	userID, _, role := callerIdentity(c)
	messages, err := router.messages.ListThread(c.Request.Context(), c.Param("id"), userID, senderRoleFor(role), limit)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"messages": messages, "total": len(messages)})
}

// handleMarkRead advances the caller's read marker.
func (router *APIRouter) handleMarkRead(c *gin.Context) {
	var req struct {
		UptoMessageID string `json:"upto_message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	userID, _, role := callerIdentity(c)
	if err := router.messages.MarkRead(c.Request.Context(), c.Param("id"), userID, senderRoleFor(role), req.UptoMessageID); err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"marked": true})
}

// handleUnreadCount returns the caller's unread message count for the
// thread.
func (router *APIRouter) handleUnreadCount(c *gin.Context) {
	userID, _, role := callerIdentity(c)
	count, err := router.messages.UnreadCount(c.Request.Context(), c.Param("id"), userID, senderRoleFor(role))
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"unread": count})
}
