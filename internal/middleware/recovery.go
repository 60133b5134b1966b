package middleware

import (
	"io"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recovery turns a handler panic into a 500 envelope. gin's own writer is
// discarded so the panic is reported once, through zerolog.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		rid := c.GetString(ContextRequestID)
		log.Error().
			Interface("panic", recovered).
			Bytes("stack", debug.Stack()).
			Str("route", route(c)).
			Str("method", c.Request.Method).
			Str("request_id", rid).
			Msg("Recovered from panic")

		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Status:  "error",
			Message: "internal server error",
			TraceID: rid,
		})
	})
}
