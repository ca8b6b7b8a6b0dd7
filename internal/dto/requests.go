package dto

import (
	"time"

	"storefront-sync/internal/cart"
	"storefront-sync/internal/notify"
	"storefront-sync/internal/orders"
	"storefront-sync/internal/realtime"
	"storefront-sync/internal/toast"

	"github.com/shopspring/decimal"
)

type AddItemRequest struct {
	ID       string          `json:"id" binding:"required"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	VendorID string          `json:"vendorId" binding:"required"`
	Qty      int             `json:"qty"`
}

func (r AddItemRequest) Item() cart.Item {
	return cart.Item{ID: r.ID, Name: r.Name, Price: r.Price, VendorID: r.VendorID}
}

type SetQtyRequest struct {
	Qty *int `json:"qty" binding:"required"`
}

type DrawerRequest struct {
	Open bool `json:"open"`
}

type CartResponse struct {
	Lines      []cart.Line     `json:"lines"`
	VendorID   string          `json:"vendorId"`
	DrawerOpen bool            `json:"drawerOpen"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalQty   int             `json:"totalQty"`
}

func NewCartResponse(s cart.State) CartResponse {
	lines := s.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return CartResponse{
		Lines:      lines,
		VendorID:   s.VendorID,
		DrawerOpen: s.DrawerOpen,
		Subtotal:   s.Subtotal(),
		TotalQty:   s.TotalQty(),
	}
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending accepted ready delivered rejected"`
}

type OrdersResponse struct {
	Items  []orders.Order `json:"items"`
	Counts orders.Counts  `json:"counts"`
}

type MarkReadRequest struct {
	// пустой ID = отметить все
	ID string `json:"id"`
}

type NotificationsResponse struct {
	Items  []notify.Record `json:"items"`
	Unread int             `json:"unread"`
}

type ConnectionResponse struct {
	Status realtime.Status `json:"status"`
	Since  time.Time       `json:"since"`
	Error  string          `json:"error,omitempty"`
	Rooms  []string        `json:"rooms"`
}

func NewConnectionResponse(st realtime.ConnectionState, rooms []realtime.Room) ConnectionResponse {
	resp := ConnectionResponse{Status: st.Status, Since: st.Since, Rooms: make([]string, 0, len(rooms))}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	for _, r := range rooms {
		resp.Rooms = append(resp.Rooms, r.String())
	}
	return resp
}

type ToastsResponse struct {
	Items []toast.Toast `json:"items"`
}
