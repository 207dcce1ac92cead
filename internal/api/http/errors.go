package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/job"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/view"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/storage"
)

// classify maps an error to a status and a user-facing message
func classify(err error) (int, string) {
	msg := client.Message(err)

	switch {
	case errors.Is(err, view.ErrEmptyPrompt),
		errors.Is(err, view.ErrUnknownModel),
		errors.Is(err, planner.ErrEmptyGoal),
		errors.Is(err, storage.ErrEmptyName):
		return http.StatusBadRequest, msg
	case errors.Is(err, planner.ErrInvalidPlan):
		return http.StatusUnprocessableEntity, msg
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, view.ErrUnknownSession),
		errors.Is(err, planner.ErrUnknownTemplate),
		errors.Is(err, client.ErrNotFound):
		return http.StatusNotFound, msg
	case errors.Is(err, session.ErrIdentityChanged):
		return http.StatusConflict, msg
	case errors.Is(err, client.ErrUnauthenticated):
		return http.StatusUnauthorized, msg
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusTooManyRequests, msg
	case errors.Is(err, client.ErrUnavailable), errors.Is(err, job.ErrShutdown):
		return http.StatusServiceUnavailable, msg
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, msg
	}
	return http.StatusInternalServerError, msg
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
