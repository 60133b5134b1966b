package tracking

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/service/notification"
	apperrors "github.com/supplierportal/notify-api/pkg/errors"
	"github.com/supplierportal/notify-api/pkg/httputil"
	"github.com/supplierportal/notify-api/pkg/logger"
)

// Pixel is a transparent 1x1 PNG.
var Pixel = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89\x00\x00\x00\nIDATx\x9cc\x00\x01\x00\x00\x05\x00\x01\r\n-\xb4\x00\x00\x00\x00IEND\xaeB`\x82")

type Handler struct {
	service notification.Service
	logger  *logger.Logger
}

func NewHandler(service notification.Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	t := r.Group("/t")
	{
		t.GET("/:tracking_id", h.Open)
		t.GET("/:tracking_id/open", h.Open)
		t.GET("/:tracking_id/click/*target", h.Click)
	}
}

func (h *Handler) Open(c *gin.Context) {
	id, ok := h.trackingID(c)
	if !ok {
		return
	}
	if _, err := h.service.TrackOpen(c.Request.Context(), id, c.ClientIP(), c.Request.UserAgent()); err != nil {
		handler.Error(c, "Notification", err)
		return
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Data(http.StatusOK, "image/png", Pixel)
}

func (h *Handler) Click(c *gin.Context) {
	id, ok := h.trackingID(c)
	if !ok {
		return
	}

	target, err := clickTarget(c)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid link", err))
		return
	}
	if err := h.service.VerifyClick(id, target, c.Query("sig")); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid link signature", err))
		return
	}

	if _, err := h.service.TrackClick(c.Request.Context(), id, c.ClientIP(), c.Request.UserAgent()); err != nil {
		handler.Error(c, "Notification", err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (h *Handler) trackingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("tracking_id"))
	if err != nil {
		h.logger.Debug("malformed tracking id", "tracking_id", c.Param("tracking_id"))
		httputil.RespondWithError(c, apperrors.NotFound("Notification", err))
		return uuid.Nil, false
	}
	return id, true
}

// clickTarget recovers the redirect target from the escaped request path,
// so reserved characters inside the encoded URL survive routing.
func clickTarget(c *gin.Context) (string, error) {
	path := c.Request.URL.EscapedPath()
	i := strings.Index(path, "/click/")
	if i < 0 {
		return "", apperrors.BadRequest("missing link", nil)
	}
	target, err := url.PathUnescape(path[i+len("/click/"):])
	if err != nil {
		return "", err
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperrors.BadRequest("unsupported link", nil)
	}
	return target, nil
}
