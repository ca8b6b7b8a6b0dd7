package handlers

import (
	"net/http"

	"storefront-sync/internal/dto"
	"storefront-sync/internal/realtime"
	"storefront-sync/internal/toast"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ConnectionHandler struct {
	ch     *realtime.Channel
	toasts *toast.Ring
	log    *zap.Logger
}

func NewConnectionHandler(ch *realtime.Channel, toasts *toast.Ring, log *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{ch: ch, toasts: toasts, log: log}
}

func (h *ConnectionHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewConnectionResponse(h.ch.State(), h.ch.Rooms()))
}

// Retry: ручное переподключение из баннера "offline"
func (h *ConnectionHandler) Retry(c *gin.Context) {
	if h.ch.Retry() {
		c.JSON(http.StatusAccepted, dto.NewConnectionResponse(h.ch.State(), h.ch.Rooms()))
		return
	}
	st := h.ch.State().Status
	if !h.ch.Running() || st == realtime.StatusOnline || st == realtime.StatusConnecting {
		c.JSON(http.StatusConflict, dto.NewConflictError("nothing to retry"))
		return
	}
	c.JSON(http.StatusTooManyRequests, dto.NewRateLimitedError("retry requested too often"))
}

func (h *ConnectionHandler) Toasts(c *gin.Context) {
	items := h.toasts.Recent()
	if items == nil {
		items = []toast.Toast{}
	}
	c.JSON(http.StatusOK, dto.ToastsResponse{Items: items})
}
