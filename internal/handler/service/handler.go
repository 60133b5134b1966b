package service

import (
	"github.com/gin-gonic/gin"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/service/registry"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

// Handler exposes the notification service registry.
type Handler struct {
	registry registry.Service
}

func NewHandler(registry registry.Service) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	services := r.Group("/services")
	{
		services.GET("", h.ListServices)
		services.POST("/seed", h.Seed)
		services.GET("/:id", h.GetService)
		services.POST("/:id/:action", h.Control)
	}
}

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.registry.List(c.Request.Context())
	if err != nil {
		handler.Error(c, "Service", err)
		return
	}
	httputil.RespondWithSuccess(c, services)
}

func (h *Handler) GetService(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	svc, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Service", err)
		return
	}
	httputil.RespondWithSuccess(c, svc)
}

func (h *Handler) Seed(c *gin.Context) {
	n, err := h.registry.Seed(c.Request.Context())
	if err != nil {
		handler.Error(c, "Service", err)
		return
	}
	httputil.RespondWithMessage(c, "Default services created", gin.H{"created": n})
}

func (h *Handler) Control(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	action := model.ServiceAction(c.Param("action"))
	switch action {
	case model.ServiceActionStart, model.ServiceActionStop, model.ServiceActionPause,
		model.ServiceActionResume, model.ServiceActionRestart:
	default:
		httputil.RespondWithError(c, apperrors.BadRequest("unknown action "+string(action), nil))
		return
	}

	res, err := h.registry.Control(c.Request.Context(), id, action)
	if err != nil {
		handler.Error(c, "Service", err)
		return
	}
	httputil.RespondWithMessage(c, res.Message, res)
}
