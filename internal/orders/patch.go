package orders

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"storefront-sync/internal/events"

	"github.com/shopspring/decimal"
)

// Patch is a partial order. Nil fields are absent and leave the target
// untouched; ID is the merge key and is always required.
type Patch struct {
	ID            string
	VendorID      *string
	UserID        *string
	Status        *Status
	PaymentStatus *PaymentStatus
	TotalAmount   *decimal.Decimal
	CreatedAt     *time.Time
	PaidAt        *time.Time
	LineItems     *[]LineItem
}

func ptr[T any](v T) *T { return &v }

func StatusPatch(id string, s Status) Patch {
	return Patch{ID: id, Status: ptr(s)}
}

func PaymentPatch(id string, s PaymentStatus) Patch {
	return Patch{ID: id, PaymentStatus: ptr(s)}
}

// FromOrder turns a complete order into a patch. Zero values count as absent.
func FromOrder(o Order) Patch {
	p := Patch{ID: o.ID}
	if o.VendorID != "" {
		p.VendorID = ptr(o.VendorID)
	}
	if o.UserID != "" {
		p.UserID = ptr(o.UserID)
	}
	if o.Status != "" {
		p.Status = ptr(o.Status)
	}
	if o.PaymentStatus != "" {
		p.PaymentStatus = ptr(o.PaymentStatus)
	}
	if !o.TotalAmount.IsZero() {
		p.TotalAmount = ptr(o.TotalAmount)
	}
	if !o.CreatedAt.IsZero() {
		p.CreatedAt = ptr(o.CreatedAt)
	}
	if o.PaidAt != nil {
		p.PaidAt = ptr(*o.PaidAt)
	}
	if o.LineItems != nil {
		p.LineItems = ptr(slices.Clone(o.LineItems))
	}
	return p
}

// Apply overwrites every present field of o.
func (p Patch) Apply(o Order) Order {
	o = o.clone()
	if o.ID == "" {
		o.ID = p.ID
	}
	if p.VendorID != nil {
		o.VendorID = *p.VendorID
	}
	if p.UserID != nil {
		o.UserID = *p.UserID
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.TotalAmount != nil {
		o.TotalAmount = *p.TotalAmount
	}
	if p.CreatedAt != nil {
		o.CreatedAt = *p.CreatedAt
	}
	if p.PaidAt != nil {
		o.PaidAt = ptr(*p.PaidAt)
	}
	if p.LineItems != nil {
		o.LineItems = slices.Clone(*p.LineItems)
	}
	return o
}

func (o Order) clone() Order {
	o.LineItems = slices.Clone(o.LineItems)
	if o.PaidAt != nil {
		o.PaidAt = ptr(*o.PaidAt)
	}
	return o
}

// PatchFromPayload reads an order-shaped payload. The id is looked up under
// idKeys; every other field is optional.
func PatchFromPayload(p events.Payload, idKeys []string) (Patch, bool) {
	id, ok := p.String(idKeys...)
	if !ok {
		return Patch{}, false
	}
	out := Patch{ID: id}
	if v, ok := p.String(events.VendorIDKeys...); ok {
		out.VendorID = ptr(v)
	}
	if v, ok := p.String(events.UserIDKeys...); ok {
		out.UserID = ptr(v)
	}
	if v, ok := p.String(events.StatusKeys...); ok {
		out.Status = ptr(Status(strings.ToLower(v)))
	}
	if v, ok := p.String(events.PaymentStatusKeys...); ok {
		out.PaymentStatus = ptr(PaymentStatus(strings.ToLower(v)))
	}
	if v, ok := p.Decimal(events.TotalKeys...); ok {
		out.TotalAmount = ptr(v)
	}
	if v, ok := p.Time(events.CreatedAtKeys...); ok {
		out.CreatedAt = ptr(v)
	}
	if v, ok := p.Time(events.PaidAtKeys...); ok {
		out.PaidAt = ptr(v)
	}
	if raw, ok := p.Raw(events.LineItemKeys...); ok {
		if items, ok := parseLineItems(raw); ok {
			out.LineItems = ptr(items)
		}
	}
	return out, true
}

var (
	itemIDKeys    = []string{"id", "_id", "itemId", "menuItemId", "productId"}
	itemNameKeys  = []string{"name", "title"}
	itemQtyKeys   = []string{"qty", "quantity"}
	itemPriceKeys = []string{"price", "unitPrice"}
)

func parseLineItems(raw json.RawMessage) ([]LineItem, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	items := make([]LineItem, 0, len(elems))
	for _, e := range elems {
		p, ok := events.Parse(e)
		if !ok {
			continue
		}
		var it LineItem
		it.ID, _ = p.String(itemIDKeys...)
		it.Name, _ = p.String(itemNameKeys...)
		if q, ok := p.Decimal(itemQtyKeys...); ok {
			it.Qty = int(q.IntPart())
		}
		it.Price, _ = p.Decimal(itemPriceKeys...)
		items = append(items, it)
	}
	return items, true
}

// Normalize accepts a bare array or an {"items": [...]} envelope. Any other
// shape, and any element without an id, is dropped.
func Normalize(raw []byte) []Patch {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '{' {
		env, ok := events.Parse(raw)
		if !ok {
			return nil
		}
		items, ok := env.Raw("items")
		if !ok {
			return nil
		}
		raw = items
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	out := make([]Patch, 0, len(elems))
	for _, e := range elems {
		p, ok := events.Parse(e)
		if !ok {
			continue
		}
		if patch, ok := PatchFromPayload(p, events.IDKeys); ok {
			out = append(out, patch)
		}
	}
	return out
}
