package events

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field aliases seen in REST snapshots and push payloads.
var (
	IDKeys            = []string{"id", "_id", "ID", "Id"}
	OrderIDKeys       = []string{"orderId", "order_id", "OrderId", "id", "_id", "ID"}
	VendorIDKeys      = []string{"vendorId", "VendorId", "vendor_id", "VendorID"}
	UserIDKeys        = []string{"userId", "UserId", "user_id", "UserID"}
	StatusKeys        = []string{"status", "Status"}
	PaymentStatusKeys = []string{"paymentStatus", "payment_status", "PaymentStatus"}
	TotalKeys         = []string{"totalAmount", "total_amount", "TotalAmount", "total"}
	CreatedAtKeys     = []string{"createdAt", "created_at", "CreatedAt"}
	PaidAtKeys        = []string{"paidAt", "paid_at", "PaidAt"}
	LineItemKeys      = []string{"lineItems", "line_items", "items", "OrderItems", "orderItems"}
)

// Payload is a decoded JSON object with alias-aware accessors. Values that
// are missing, null or of the wrong shape read as absent.
type Payload map[string]json.RawMessage

// Parse decodes a JSON object; anything else is rejected.
func Parse(raw []byte) (Payload, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return p, true
}

func (p Payload) lookup(keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := p[k]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			continue
		}
		return v, true
	}
	return nil, false
}

// String accepts JSON strings and numbers (numeric ids are common).
func (p Payload) String(keys ...string) (string, bool) {
	v, ok := p.lookup(keys)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// Time accepts RFC 3339 strings and unix epoch milliseconds.
func (p Payload) Time(keys ...string) (time.Time, bool) {
	v, ok := p.lookup(keys)
	if !ok {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	}
	var ms int64
	if err := json.Unmarshal(v, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// Decimal accepts JSON numbers and numeric strings.
func (p Payload) Decimal(keys ...string) (decimal.Decimal, bool) {
	v, ok := p.lookup(keys)
	if !ok {
		return decimal.Zero, false
	}
	var d decimal.Decimal
	if err := json.Unmarshal(v, &d); err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Raw returns the undecoded value for callers with their own shape.
func (p Payload) Raw(keys ...string) (json.RawMessage, bool) {
	return p.lookup(keys)
}
