package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/guard"
)

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	e, ok := guard.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case guard.KindAuthorization:
		return http.StatusForbidden
	case guard.KindLifecycle:
		return http.StatusConflict
	case guard.KindInput:
		return http.StatusBadRequest
	case guard.KindArithmetic, guard.KindAccount:
		return http.StatusUnprocessableEntity
	case guard.KindNotFound:
		return http.StatusNotFound
	case guard.KindFunds:
		return http.StatusPaymentRequired
	case guard.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(status, gin.H{"error": "Internal", "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": guard.CodeOf(err), "message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": err.Error()})
}
