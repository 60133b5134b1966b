package campaign

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/middleware"
	"github.com/supplierportal/notify-api/internal/model"
	campaignService "github.com/supplierportal/notify-api/internal/service/campaign"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

type Handler struct {
	service campaignService.Service
}

func NewHandler(service campaignService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	campaigns := r.Group("/campaigns")
	{
		campaigns.POST("", h.CreateCampaign)
		campaigns.GET("", h.ListCampaigns)
		campaigns.GET("/:id", h.GetCampaign)
		campaigns.POST("/:id/recipients/recalculate", h.RecalculateRecipients)
		campaigns.POST("/:id/:action", h.Control)
	}
}

type controlRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req campaignService.CreateRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	if id, err := uuid.Parse(c.GetString(middleware.ContextUserID)); err == nil {
		req.CreatedBy = &id
	}

	campaign, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		handler.Error(c, "Campaign", err)
		return
	}
	httputil.RespondWithCreated(c, campaign)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	page := handler.Page(c)
	campaigns, err := h.service.List(c.Request.Context(), model.CampaignStatus(c.Query("status")), page)
	if err != nil {
		handler.Error(c, "Campaign", err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"items":     campaigns,
		"page":      page.Page,
		"page_size": page.PageSize,
	})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	campaign, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Campaign", err)
		return
	}
	httputil.RespondWithSuccess(c, campaign)
}

func (h *Handler) RecalculateRecipients(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	campaign, err := h.service.RecalculateRecipients(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Campaign", err)
		return
	}
	httputil.RespondWithMessage(c, "Recipients recalculated", campaign)
}

func (h *Handler) Control(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req controlRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	res, err := h.service.Control(c.Request.Context(), id, campaignService.Action(c.Param("action")), req.ScheduledAt)
	if err != nil {
		handler.Error(c, "Campaign", err)
		return
	}
	httputil.RespondWithMessage(c, res.Message, res)
}
