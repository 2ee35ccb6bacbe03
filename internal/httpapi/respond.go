package httpapi

import (
	"errors"
	"net/http"

	"field-agent/internal/calls"
	"field-agent/internal/history"
	"field-agent/internal/inbound"
	"field-agent/internal/tracking"
	"field-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Every command answers {"success": bool, "message"|"error": string}.

var errInvalidJSON = errors.New("invalid json")

func ok(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func okWith(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

// failErr maps a service error onto the status taxonomy and logs it.
func failErr(c *gin.Context, err error) {
	status := statusFor(err)
	log := logger.FromGin(c)
	if status >= http.StatusInternalServerError {
		log.Error("command failed", "err", err)
	} else {
		log.Warn("command rejected", "status", status, "err", err)
	}
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	fail(c, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidJSON),
		errors.Is(err, tracking.ErrMissingField),
		errors.Is(err, tracking.ErrInvalidSample),
		errors.Is(err, calls.ErrInvalidCall),
		errors.Is(err, inbound.ErrMissingCallID),
		errors.Is(err, inbound.ErrUnknownSignal),
		errors.Is(err, history.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, tracking.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, calls.ErrInvalidTransition),
		errors.Is(err, calls.ErrCallMismatch),
		errors.Is(err, calls.ErrCallActive),
		errors.Is(err, tracking.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, tracking.ErrUnavailable),
		errors.Is(err, tracking.ErrSampleDropped),
		errors.Is(err, inbound.ErrUnavailable),
		errors.Is(err, history.ErrNoRepository):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
