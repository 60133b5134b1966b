package middleware

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

// ErrorResponse is the body written by middleware that aborts before a handler runs.
// It matches httputil.Response plus the request id.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error when
// the handler did not write a response itself. Client errors are logged at
// warn, everything else at error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			event := log.Error()
			var appErr *apperrors.AppError
			if e.IsType(gin.ErrorTypeBind) || (stderrors.As(e.Err, &appErr) && appErr.HTTPStatus() < 500) {
				event = log.Warn()
			}
			event.
				Err(e.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("route", route(c)).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
