package analytics

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/model"
	analyticsService "github.com/supplierportal/notify-api/internal/service/analytics"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

const (
	dateLayout        = "2006-01-02"
	defaultWindowDays = 30
)

type Handler struct {
	service analyticsService.Service
	now     func() time.Time
}

func NewHandler(service analyticsService.Service) *Handler {
	return &Handler{
		service: service,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	analytics := r.Group("/analytics")
	{
		analytics.GET("", h.ListAnalytics)
		analytics.POST("/generate", h.Generate)
	}
}

type generateRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Days int    `json:"days" binding:"omitempty,min=1,max=366"`
}

// ListAnalytics returns rollups between from and to (inclusive, YYYY-MM-DD).
// Without a range it covers the last 30 days.
func (h *Handler) ListAnalytics(c *gin.Context) {
	today := model.TruncateDay(h.now())
	filter := model.AnalyticsFilter{
		From:    today.AddDate(0, 0, -defaultWindowDays),
		To:      today,
		Channel: model.Channel(c.Query("channel")),
	}

	var err error
	if v := c.Query("from"); v != "" {
		if filter.From, err = time.Parse(dateLayout, v); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid from date", err))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if filter.To, err = time.Parse(dateLayout, v); err != nil {
			httputil.RespondWithError(c, apperrors.BadRequest("invalid to date", err))
			return
		}
	}

	rows, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Error(c, "Analytics", err)
		return
	}
	httputil.RespondWithSuccess(c, rows)
}

// Generate rebuilds one day when date is given, otherwise the last days
// days ending today.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	if req.Date != "" {
		day, _ := time.Parse(dateLayout, req.Date)
		rows, err := h.service.GenerateDaily(c.Request.Context(), day)
		if err != nil {
			handler.Error(c, "Analytics", err)
			return
		}
		httputil.RespondWithMessage(c, "Analytics generated for "+req.Date, rows)
		return
	}

	if req.Days == 0 {
		req.Days = 1
	}
	n, err := h.service.GenerateRange(c.Request.Context(), h.now(), req.Days)
	if err != nil {
		handler.Error(c, "Analytics", err)
		return
	}
	httputil.RespondWithMessage(c, "Analytics generated", gin.H{"days": req.Days, "rows": n})
}
