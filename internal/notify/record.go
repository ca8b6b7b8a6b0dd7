// Package notify projects push events into a capped, persisted notification
// feed with read state. It shares the event stream with the order book but
// not its state, so the two can briefly disagree.
package notify

import (
	"fmt"
	"strings"
	"time"

	"storefront-sync/internal/events"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Href      string    `json:"href"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

func ordersHref(v events.Viewer, id string) string {
	switch v.Kind {
	case events.ViewerVendor:
		return "/vendor/orders/" + id
	case events.ViewerAdmin:
		return "/admin/orders/" + id
	default:
		return "/orders/" + id
	}
}

// Compose turns one push event into a record. Events without an order id,
// and new orders addressed to somebody else, produce nothing.
func Compose(v events.Viewer, name string, data []byte) (Record, bool) {
	p, ok := events.Parse(data)
	if !ok {
		return Record{}, false
	}
	id, ok := p.String(events.OrderIDKeys...)
	if !ok {
		return Record{}, false
	}
	r := Record{Href: ordersHref(v, id), Kind: KindInfo}

	switch name {
	case events.OrderNew:
		vendor, _ := p.String(events.VendorIDKeys...)
		user, _ := p.String(events.UserIDKeys...)
		if !v.Scopes(vendor, user) {
			return Record{}, false
		}
		if v.Kind == events.ViewerUser {
			r.Title = "Order placed"
			r.Body = fmt.Sprintf("Your order #%s has been placed", id)
		} else {
			r.Title = "New order"
			r.Body = fmt.Sprintf("Order #%s has been received", id)
		}
		if total, ok := p.Decimal(events.TotalKeys...); ok {
			r.Body += fmt.Sprintf(" (total %s)", total.StringFixed(2))
		}

	case events.OrderStatus:
		status, ok := p.String(events.StatusKeys...)
		if !ok {
			return Record{}, false
		}
		status = strings.ToLower(status)
		r.Title = "Order " + status
		r.Body = fmt.Sprintf("Order #%s is now %s", id, status)
		switch status {
		case "rejected":
			r.Kind = KindError
		case "delivered":
			r.Kind = KindSuccess
		}

	case events.PaymentProcessing:
		r.Title = "Payment processing"
		r.Body = fmt.Sprintf("Payment for order #%s is being processed", id)
	case events.PaymentSuccess:
		r.Title, r.Kind = "Payment received", KindSuccess
		r.Body = fmt.Sprintf("Payment for order #%s was successful", id)
	case events.PaymentFailed:
		r.Title, r.Kind = "Payment failed", KindError
		r.Body = fmt.Sprintf("Payment for order #%s failed", id)

	case events.OrderPayment:
		status, _ := p.String(events.PaymentStatusKeys...)
		switch strings.ToLower(status) {
		case "paid":
			r.Title, r.Kind = "Payment received", KindSuccess
		case "failed":
			r.Title, r.Kind = "Payment failed", KindError
		case "processing":
			r.Title = "Payment processing"
		default:
			r.Title, r.Kind = "Payment update", KindWarning
		}
		r.Body = fmt.Sprintf("Payment status for order #%s: %s", id, strings.ToLower(status))
		if status == "" {
			r.Body = fmt.Sprintf("Payment status for order #%s changed", id)
		}

	default:
		return Record{}, false
	}
	return r, true
}
