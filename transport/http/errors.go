package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/gamebridge/core"
)

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	// Clients rebuild on 410
	if errors.Is(err, core.ErrBlockhashExpired) {
		return http.StatusGone
	}

	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuth:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// abortWithError writes the error payload. Only the display message of the
// classified error is exposed, never the wrapped upstream details.
func abortWithError(c *gin.Context, err error) {
	reason, message := core.ErrUpstream.Reason, core.ErrUpstream.Message

	var e *core.Error
	if errors.As(err, &e) {
		reason, message = e.Reason, e.Message
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{
		"error":  message,
		"reason": reason,
	})
}
