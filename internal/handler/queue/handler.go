package queue

import (
	"github.com/gin-gonic/gin"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/model"
	queueService "github.com/supplierportal/notify-api/internal/service/queue"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

type Handler struct {
	service queueService.Service
}

func NewHandler(service queueService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	queue := r.Group("/queue")
	{
		queue.GET("", h.ListItems)
		queue.GET("/stats", h.Stats)
		queue.GET("/:id", h.GetItem)
		queue.POST("/:id/:action", h.Control)
	}
}

type controlRequest struct {
	WorkerID string `json:"worker_id" binding:"omitempty,max=100"`
}

func (h *Handler) ListItems(c *gin.Context) {
	status := model.QueueStatus(c.Query("status"))
	page := handler.Page(c)

	items, err := h.service.List(c.Request.Context(), status, page)
	if err != nil {
		handler.Error(c, "Queue item", err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"items":     items,
		"page":      page.Page,
		"page_size": page.PageSize,
	})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		handler.Error(c, "Queue", err)
		return
	}
	httputil.RespondWithSuccess(c, stats)
}

func (h *Handler) GetItem(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Queue item", err)
		return
	}
	httputil.RespondWithSuccess(c, item)
}

// Control runs an operator action. An action the item's state does not
// allow is reported with success=false rather than as an error.
func (h *Handler) Control(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	action := queueService.Action(c.Param("action"))
	switch action {
	case queueService.ActionRetry, queueService.ActionCancel, queueService.ActionAssign:
	default:
		httputil.RespondWithError(c, apperrors.BadRequest("unknown action "+string(action), nil))
		return
	}

	var req controlRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Control(c.Request.Context(), id, action, req.WorkerID)
	if err != nil {
		handler.Error(c, "Queue item", err)
		return
	}
	httputil.RespondWithMessage(c, res.Message, res)
}
