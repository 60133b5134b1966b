package template

import (
	"github.com/gin-gonic/gin"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/model"
	templateStore "github.com/supplierportal/notify-api/internal/template"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

type Handler struct {
	store *templateStore.Store
}

func NewHandler(store *templateStore.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	templates := r.Group("/templates")
	{
		templates.POST("", h.CreateTemplate)
		templates.GET("", h.ListTemplates)
		templates.POST("/seed", h.SeedDefaults)
		templates.GET("/:id", h.GetTemplate)
		templates.PUT("/:id", h.UpdateTemplate)
		templates.POST("/:id/activate", h.Activate)
		templates.POST("/:id/deactivate", h.Deactivate)
		templates.POST("/:id/preview", h.Preview)
	}
}

type templateRequest struct {
	Name             string                 `json:"name" binding:"required,max=100"`
	NotificationType model.NotificationType `json:"notification_type" binding:"required,oneof=APPLICATION_SUBMITTED DOCUMENTS_REQUESTED APPLICATION_APPROVED APPLICATION_REJECTED PASSWORD_RESET ACCOUNT_CREATED ADMIN_NOTIFICATION"`
	Subject          string                 `json:"subject" binding:"required,max=200"`
	BodyHTML         string                 `json:"body_html"`
	BodyText         string                 `json:"body_text"`
	IsActive         *bool                  `json:"is_active"`
}

type previewRequest struct {
	Context model.JSONMap `json:"context"`
}

func (r templateRequest) apply(tmpl *model.NotificationTemplate) {
	tmpl.Name = r.Name
	tmpl.NotificationType = r.NotificationType
	tmpl.Subject = r.Subject
	tmpl.BodyHTML = r.BodyHTML
	tmpl.BodyText = r.BodyText
	if r.IsActive != nil {
		tmpl.IsActive = *r.IsActive
	}
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tmpl := &model.NotificationTemplate{IsActive: true}
	req.apply(tmpl)

	if err := h.store.Create(c.Request.Context(), tmpl); err != nil {
		handler.Error(c, "Template", err)
		return
	}
	httputil.RespondWithCreated(c, tmpl)
}

func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.store.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		handler.Error(c, "Template", err)
		return
	}
	httputil.RespondWithSuccess(c, templates)
}

func (h *Handler) GetTemplate(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Template", err)
		return
	}
	httputil.RespondWithSuccess(c, tmpl)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req templateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tmpl, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Template", err)
		return
	}
	req.apply(tmpl)
	if err := h.store.Update(c.Request.Context(), tmpl); err != nil {
		handler.Error(c, "Template", err)
		return
	}
	httputil.RespondWithSuccess(c, tmpl)
}

func (h *Handler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	tmpl, err := h.store.SetActive(c.Request.Context(), id, active)
	if err != nil {
		handler.Error(c, "Template", err)
		return
	}
	httputil.RespondWithSuccess(c, tmpl)
}

func (h *Handler) SeedDefaults(c *gin.Context) {
	n, err := h.store.SeedDefaults(c.Request.Context())
	if err != nil {
		handler.Error(c, "Template", err)
		return
	}
	httputil.RespondWithMessage(c, "Default templates seeded", gin.H{"created": n})
}

// Preview renders the template against a sample context without sending.
func (h *Handler) Preview(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req previewRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}
	tmpl, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, "Template", err)
		return
	}

	out := templateStore.Render(tmpl, req.Context)
	httputil.RespondWithSuccess(c, gin.H{
		"subject":   out.Subject,
		"body_html": out.BodyHTML,
		"body_text": out.BodyText,
	})
}
