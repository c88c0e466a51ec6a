package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusForCode(code string) int {
	switch code {
	case core.ErrCodeBadRequest:
		return http.StatusBadRequest
	case core.ErrCodeUnauthorized:
		return http.StatusForbidden
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeAlreadyDeleted, core.ErrCodeAlreadyFinalized, core.ErrCodeInvalidTransition, core.ErrCodeConflict:
		return http.StatusConflict
	case core.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeCoreError maps a core error onto an HTTP response. Storage failures are
// logged and answered with internalMsg.
func writeCoreError(c *gin.Context, logger *zerolog.Logger, err error, internalMsg string) {
	ce := core.ToCoreError(err)
	status := statusForCode(ce.Code)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(status, ErrorResponse{Error: internalMsg})
		return
	}
	c.JSON(status, ErrorResponse{Error: ce.Message})
}
