package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatchat/internal/apierrors"
	"github.com/goatkit/goatchat/internal/models"
)

// APIResponse is the standard JSON envelope for successful responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func sendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func sendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// sendDomainError maps typed domain errors onto registered API error codes.
// Unknown errors become an internal error without leaking detail.
func sendDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		apierrors.Error(c, apierrors.CodeInvalidTransition)
	case errors.Is(err, models.ErrAlreadyActiveSession):
		apierrors.Error(c, apierrors.CodeAlreadyActiveSession)
	case errors.Is(err, models.ErrAgentAtCapacity):
		apierrors.Error(c, apierrors.CodeAgentAtCapacity)
	case errors.Is(err, models.ErrAgentUnavailable):
		apierrors.Error(c, apierrors.CodeAgentUnavailable)
	case errors.Is(err, models.ErrQueueEmpty):
		apierrors.Error(c, apierrors.CodeQueueEmpty)
	case errors.Is(err, models.ErrInvalidCapacity):
		apierrors.Error(c, apierrors.CodeInvalidCapacity)
	case errors.Is(err, models.ErrSessionNotFound):
		apierrors.Error(c, apierrors.CodeSessionNotFound)
	case errors.Is(err, models.ErrThreadNotFound):
		apierrors.Error(c, apierrors.CodeThreadNotFound)
	case errors.Is(err, models.ErrMessageNotFound):
		apierrors.Error(c, apierrors.CodeMessageNotFound)
	case errors.Is(err, models.ErrNotParticipant), errors.Is(err, models.ErrNotAssigned):
		apierrors.Error(c, apierrors.CodeNotParticipant)
	default:
		apierrors.Error(c, apierrors.CodeInternalError)
	}
}
