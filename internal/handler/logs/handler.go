package logs

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/service/notification"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

const defaultRetryLimit = 100

var actionVerbs = map[notification.LogAction]string{
	notification.ActionRetry:  "scheduled for retry",
	notification.ActionPause:  "paused",
	notification.ActionResume: "resumed",
	notification.ActionDelete: "deleted",
}

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	logs := r.Group("/logs")
	{
		logs.GET("", h.ListLogs)
		logs.GET("/:id", h.GetLog)
		logs.POST("/actions", h.BulkAction)
		logs.POST("/retry-failed", h.RetryFailed)
		logs.POST("/:id/report", h.DeliveryReport)
	}
}

type bulkActionRequest struct {
	Action notification.LogAction `json:"action" binding:"required,oneof=retry pause resume delete"`
	IDs    []uuid.UUID            `json:"ids" binding:"required,min=1,max=500"`
}

type retryFailedRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=1000"`
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filter model.LogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid filter", err))
		return
	}
	filter.Pagination = handler.Page(c)

	logs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Error(c, "Notification", err)
		return
	}
	httputil.RespondWithPagination(c, logs, filter.Page, filter.PageSize, total)
}

func (h *Handler) GetLog(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	log, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Notification", err)
		return
	}
	httputil.RespondWithSuccess(c, log)
}

func (h *Handler) BulkAction(c *gin.Context) {
	var req bulkActionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	n, err := h.service.BulkAction(c.Request.Context(), req.Action, req.IDs)
	if err != nil {
		handler.Error(c, "Notification", err)
		return
	}
	httputil.RespondWithMessage(c,
		fmt.Sprintf("Successfully %s %d notifications", actionVerbs[req.Action], n),
		gin.H{"processed": n})
}

func (h *Handler) RetryFailed(c *gin.Context) {
	var req retryFailedRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultRetryLimit
	}

	n, err := h.service.RetryFailed(c.Request.Context(), req.Limit)
	if err != nil {
		handler.Error(c, "Notification", err)
		return
	}
	httputil.RespondWithMessage(c, fmt.Sprintf("Scheduled %d notifications for retry", n), gin.H{"retried": n})
}

// DeliveryReport applies a provider callback (delivered or bounced).
func (h *Handler) DeliveryReport(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var report notification.DeliveryReport
	if !handler.BindJSON(c, &report) {
		return
	}

	log, err := h.service.ApplyDeliveryReport(c.Request.Context(), id, report)
	if err != nil {
		handler.Error(c, "Notification", err)
		return
	}
	httputil.RespondWithSuccess(c, log)
}
