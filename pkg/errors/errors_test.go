package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NotFound("campaign", nil), http.StatusNotFound},
		{BadRequest("bad id", nil), http.StatusBadRequest},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Forbidden(nil), http.StatusForbidden},
		{Conflict("cannot start", nil), http.StatusConflict},
		{Validation("reason is required"), http.StatusUnprocessableEntity},
		{Unavailable("redis down", nil), http.StatusServiceUnavailable},
		{Internal(stderrors.New("db")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := stderrors.New("no rows")
	err := NotFound("template", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "template not found: no rows", err.Error())
}
