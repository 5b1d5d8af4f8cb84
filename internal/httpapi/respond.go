package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

type errorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: msg})
}

// writeError maps an engine error class onto an HTTP status. Anything
// unclassified is logged and reported as a 500 without details.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, types.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	default:
		_ = c.Error(err)
		s.logger.Error("request error", zap.Error(err), zap.String("request_id", c.GetString(requestIDKey)))
		abortError(c, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	abortError(c, status, code, types.Message(err))
}
