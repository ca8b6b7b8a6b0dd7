package handlers

import (
	"errors"
	"net/http"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/dto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CartHandler struct {
	cart *cart.Engine
	log  *zap.Logger
}

func NewCartHandler(c *cart.Engine, log *zap.Logger) *CartHandler {
	return &CartHandler{cart: c, log: log}
}

func (h *CartHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewCartResponse(h.cart.State()))
}

// AddItem добавляет позицию; позиция другого ресторана сбрасывает корзину
func (h *CartHandler) AddItem(c *gin.Context) {
	var req dto.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid add item request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", dto.FieldsFrom(err)))
		return
	}
	if req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", []dto.FieldError{
			{Field: "price", Message: "must not be negative", Tag: "min"},
		}))
		return
	}

	h.cart.AddItem(req.Item(), req.Qty)
	c.JSON(http.StatusOK, dto.NewCartResponse(h.cart.State()))
}

func (h *CartHandler) SetQty(c *gin.Context) {
	var req dto.SetQtyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", dto.FieldsFrom(err)))
		return
	}
	id := c.Param("id")
	if !h.has(id) {
		c.JSON(http.StatusNotFound, dto.NewNotFoundError("item not in cart"))
		return
	}
	h.cart.SetQty(id, *req.Qty)
	c.JSON(http.StatusOK, dto.NewCartResponse(h.cart.State()))
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	h.cart.RemoveItem(c.Param("id"))
	c.JSON(http.StatusOK, dto.NewCartResponse(h.cart.State()))
}

func (h *CartHandler) Clear(c *gin.Context) {
	h.cart.Clear()
	c.JSON(http.StatusOK, dto.NewCartResponse(h.cart.State()))
}

func (h *CartHandler) SetDrawer(c *gin.Context) {
	var req dto.DrawerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationError("invalid request body", dto.FieldsFrom(err)))
		return
	}
	h.cart.SetDrawerOpen(req.Open)
	c.JSON(http.StatusOK, dto.NewCartResponse(h.cart.State()))
}

func (h *CartHandler) Checkout(c *gin.Context) {
	draft, err := h.cart.CheckoutDraft()
	if errors.Is(err, cart.ErrEmptyCart) {
		c.JSON(http.StatusConflict, dto.NewConflictError("cart is empty"))
		return
	}
	if err != nil {
		h.log.Error("Checkout draft failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.NewInternalError(""))
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (h *CartHandler) has(id string) bool {
	for _, l := range h.cart.State().Lines {
		if l.ID == id {
			return true
		}
	}
	return false
}
