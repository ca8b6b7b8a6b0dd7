// Package orders reconciles REST snapshots, push events and optimistic local
// edits into one canonical, de-duplicated order list per viewer.
package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusRejected  Status = "rejected"
)

// Active reports whether the order still needs vendor attention.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusReady
}

type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
)

type LineItem struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

type Order struct {
	ID            string          `json:"id"`
	VendorID      string          `json:"vendorId"`
	UserID        string          `json:"userId"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CreatedAt     time.Time       `json:"createdAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	LineItems     []LineItem      `json:"lineItems"`
}

// Counts are the badge numbers derived from one list.
type Counts struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
	Active   int            `json:"active"`
	Unpaid   int            `json:"unpaid"`
}

func CountOrders(list []Order) Counts {
	c := Counts{Total: len(list), ByStatus: make(map[Status]int)}
	for _, o := range list {
		c.ByStatus[o.Status]++
		if o.Status.Active() {
			c.Active++
		}
		if o.PaymentStatus != PaymentPaid && o.Status != StatusRejected {
			c.Unpaid++
		}
	}
	return c
}
