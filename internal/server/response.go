package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/dsstrack/internal/core/common"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// respondServiceError maps a service error to its status and code. Internal
// errors are logged and reported without detail.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	kind := common.KindOf(err)
	if kind.Status == http.StatusInternalServerError {
		s.Log.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, kind.Status, kind.Code, errInternal)
		return
	}
	respondError(c, kind.Status, kind.Code, err)
}
