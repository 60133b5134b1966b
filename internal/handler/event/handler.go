package event

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/supplierportal/notify-api/internal/handler"
	"github.com/supplierportal/notify-api/internal/service/notification"
	"github.com/supplierportal/notify-api/pkg/event"
	"github.com/supplierportal/notify-api/pkg/httputil"
)

// Handler accepts business events over HTTP. It is the synchronous twin of
// the broker consumer.
type Handler struct {
	notifier notification.Notifier
}

func NewHandler(notifier notification.Notifier) *Handler {
	return &Handler{notifier: notifier}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.Publish)
}

type publishRequest struct {
	Type   event.EventType `json:"type" binding:"required"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data" binding:"required"`
}

func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	out, err := h.notifier.HandleEvent(c.Request.Context(), &event.Envelope{
		ID:         uuid.New(),
		Type:       req.Type,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Data:       req.Data,
	})
	if err != nil {
		handler.Error(c, "Recipient", err)
		return
	}
	httputil.RespondWithMessage(c, "Event processed", out)
}
