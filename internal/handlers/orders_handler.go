package handlers

import (
	"context"
	"errors"
	"net/http"

	"storefront-sync/internal/dto"
	"storefront-sync/internal/orders"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderService is what the order endpoints need beyond the read-only book.
type OrderService interface {
	UpdateOrderStatus(ctx context.Context, id string, status orders.Status) error
	Refresh(ctx context.Context) error
}

type OrdersHandler struct {
	book *orders.Book
	svc  OrderService
	log  *zap.Logger
}

func NewOrdersHandler(book *orders.Book, svc OrderService, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{book: book, svc: svc, log: log}
}

// List отдаёт канонический список; ?status=accepted и ?active=true фильтруют
func (h *OrdersHandler) List(c *gin.Context) {
	status := orders.Status(c.Query("status"))
	activeOnly := c.Query("active") == "true"

	items := h.book.Filter(func(o orders.Order) bool {
		if status != "" && o.Status != status {
			return false
		}
		return !activeOnly || o.Status.Active()
	})
	if items == nil {
		items = []orders.Order{}
	}
	c.JSON(http.StatusOK, dto.OrdersResponse{Items: items, Counts: h.book.Counts()})
}

func (h *OrdersHandler) Get(c *gin.Context) {
	o, ok := h.book.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewNotFoundError("order not found"))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrdersHandler) Counts(c *gin.Context) {
	c.JSON(http.StatusOK, h.book.Counts())
}

func (h *OrdersHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid status update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", dto.FieldsFrom(err)))
		return
	}

	id := c.Param("id")
	err := h.svc.UpdateOrderStatus(c.Request.Context(), id, orders.Status(req.Status))
	switch {
	case err == nil:
	case errors.Is(err, orders.ErrUnknownOrder):
		c.JSON(http.StatusNotFound, dto.NewNotFoundError("order not found"))
		return
	default:
		// откат и тост уже сделал book
		c.JSON(http.StatusBadGateway, dto.NewUpstreamError(err.Error()))
		return
	}

	o, _ := h.book.Get(id)
	c.JSON(http.StatusOK, o)
}

func (h *OrdersHandler) Refresh(c *gin.Context) {
	if err := h.svc.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, dto.NewUpstreamError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, dto.OrdersResponse{Items: h.book.List(), Counts: h.book.Counts()})
}
