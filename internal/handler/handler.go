package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/model"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

// Error writes err as an API error. Domain errors from the model package
// are mapped to their HTTP equivalents; resource names the entity in 404s.
func Error(c *gin.Context, resource string, err error) {
	httputil.RespondWithError(c, MapError(resource, err))
}

func MapError(resource string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var transition *model.TransitionError
	switch {
	case errors.Is(err, model.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.As(err, &transition):
		return apperrors.Conflict(transition.Error(), err)
	case errors.Is(err, model.ErrStaleState):
		return apperrors.Conflict(resource+" was modified by another request", err)
	}
	return err
}

// ParseID reads a uuid path parameter and writes a 400 when it is malformed.
func ParseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+param, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the request body into req. Field validation failures are
// attached to the context for the validation middleware to render; any
// other decode failure is written as a 400.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			_ = c.Error(err).SetType(gin.ErrorTypeBind)
			c.Abort()
			return false
		}
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

// Page reads page and page_size from the query string.
func Page(c *gin.Context) model.Pagination {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return model.Pagination{Page: page, PageSize: size}.Normalize()
}
