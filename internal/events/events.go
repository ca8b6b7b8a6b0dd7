// Package events holds the push event vocabulary shared by the order book and
// the notification feed: event names, the viewer identity used for scoping,
// and tolerant payload decoding.
package events

import "encoding/json"

const (
	OrderNew          = "order:new"
	OrderStatus       = "order:status"
	OrderPayment      = "order:payment"
	PaymentProcessing = "payment:processing"
	PaymentSuccess    = "payment:success"
	PaymentFailed     = "payment:failed"
)

// Names lists every event the storefront reacts to.
func Names() []string {
	return []string{OrderNew, OrderStatus, OrderPayment, PaymentProcessing, PaymentSuccess, PaymentFailed}
}

// Source is anything that fans out named push events. Unsubscribing must be
// safe to call more than once.
type Source interface {
	Subscribe(name string, fn func(data json.RawMessage)) (unsubscribe func())
}

type ViewerKind string

const (
	ViewerUser   ViewerKind = "user"
	ViewerVendor ViewerKind = "vendor"
	ViewerAdmin  ViewerKind = "admin"
)

// Viewer is the identity a consumer filters push events by.
type Viewer struct {
	Kind ViewerKind
	ID   string
}

// Scopes reports whether an order owned by vendorID/userID is addressed to
// the viewer. Admins see everything.
func (v Viewer) Scopes(vendorID, userID string) bool {
	switch v.Kind {
	case ViewerAdmin:
		return true
	case ViewerVendor:
		return v.ID != "" && vendorID == v.ID
	case ViewerUser:
		return v.ID != "" && userID == v.ID
	default:
		return false
	}
}

// HasRoom reports whether the viewer has a realtime room to join.
func (v Viewer) HasRoom() bool {
	return (v.Kind == ViewerUser || v.Kind == ViewerVendor) && v.ID != ""
}
