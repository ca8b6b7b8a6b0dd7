package handlers

import (
	"errors"
	"io"
	"net/http"

	"storefront-sync/internal/dto"
	"storefront-sync/internal/notify"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationsHandler struct {
	feed *notify.Feed
	log  *zap.Logger
}

func NewNotificationsHandler(feed *notify.Feed, log *zap.Logger) *NotificationsHandler {
	return &NotificationsHandler{feed: feed, log: log}
}

func (h *NotificationsHandler) List(c *gin.Context) {
	items := h.feed.List()
	if items == nil {
		items = []notify.Record{}
	}
	c.JSON(http.StatusOK, dto.NotificationsResponse{Items: items, Unread: h.feed.UnreadCount()})
}

// MarkRead без тела (или с пустым id) отмечает прочитанными все
func (h *NotificationsHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", dto.FieldsFrom(err)))
		return
	}

	if req.ID == "" {
		h.feed.MarkAllRead()
	} else if !h.feed.MarkRead(req.ID) {
		c.JSON(http.StatusNotFound, dto.NewNotFoundError("notification not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": h.feed.UnreadCount()})
}

func (h *NotificationsHandler) Clear(c *gin.Context) {
	h.feed.ClearAll()
	c.Status(http.StatusNoContent)
}
