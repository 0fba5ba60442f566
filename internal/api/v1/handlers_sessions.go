package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatchat/internal/apierrors"
	"github.com/goatkit/goatchat/internal/chat"
	"github.com/goatkit/goatchat/internal/middleware"
	"github.com/goatkit/goatchat/internal/models"
)

// handleStartSession opens a new session for the calling contact.
func (router *APIRouter) handleStartSession(c *gin.Context) {
	var req struct {
		SchoolID       string `json:"school_id"`
		Subject        string `json:"subject"`
		InitialMessage string `json:"initial_message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	userID, userName, _ := callerIdentity(c)
	result, err := router.service.StartSession(c.Request.Context(), chat.StartInput{
		ContactID:      userID,
		ContactName:    userName,
		SchoolID:       req.SchoolID,
		Subject:        req.Subject,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendCreated(c, gin.H{
		"session":  result.Session,
		"messages": result.Messages,
	})
}

// handleGetSession returns one session. Contacts see only their own;
// agents only sessions assigned to them.
func (router *APIRouter) handleGetSession(c *gin.Context) {
	session, err := router.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendDomainError(c, err)
		return
	}

	userID, _, role := callerIdentity(c)
	switch role {
	case middleware.RoleContact:
		if session.SchoolContactID != userID {
			apierrors.Error(c, apierrors.CodeNotParticipant)
			return
		}
	case middleware.RoleAgent:
		assigned := session.AssignedAgentID != nil && *session.AssignedAgentID == userID
		if !assigned && session.Status != models.SessionWaiting {
			apierrors.Error(c, apierrors.CodeNotParticipant)
			return
		}
	}
	sendSuccess(c, gin.H{"session": session})
}

// handleSendAIMessage handles one contact turn while the assistant owns the
// session.
func (router *APIRouter) handleSendAIMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	userID, _, _ := callerIdentity(c)
	result, err := router.service.SendAIMessage(c.Request.Context(), c.Param("id"), userID, req.Content)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{
		"session":   result.Session,
		"message":   result.ContactMessage,
		"reply":     result.Reply,
		"escalated": result.Escalated,
	})
}

// handleRequestEscalation moves the caller's session into the agent queue.
func (router *APIRouter) handleRequestEscalation(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional.
	_ = c.ShouldBindJSON(&req)

	userID, _, _ := callerIdentity(c)
	session, err := router.service.RequestEscalation(c.Request.Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"session": session})
}

// handleTransferChat hands the session to another agent or back to the
// queue when no target is given.
func (router *APIRouter) handleTransferChat(c *gin.Context) {
	var req struct {
		ToAgentID   string `json:"to_agent_id"`
		ToAgentName string `json:"to_agent_name"`
	}
	_ = c.ShouldBindJSON(&req)

	userID, _, _ := callerIdentity(c)
	session, err := router.service.TransferChat(c.Request.Context(), c.Param("id"), userID, req.ToAgentID, req.ToAgentName)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"session": session})
}

// handleEndSession closes the session. Idempotent.
func (router *APIRouter) handleEndSession(c *gin.Context) {
	userID, _, role := callerIdentity(c)
	session, err := router.service.EndSession(c.Request.Context(), c.Param("id"), userID, senderRoleFor(role))
	if err != nil {
		sendDomainError(c, err)
		return
	}
	sendSuccess(c, gin.H{"session": session})
}
