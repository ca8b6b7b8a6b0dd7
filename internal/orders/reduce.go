package orders

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type field int

const (
	fieldVendor field = iota
	fieldUser
	fieldStatus
	fieldPayment
	fieldTotal
	fieldCreated
	fieldPaidAt
	fieldItems
	numFields
)

// source says where a write came from.
type source uint8

const (
	fromEvent source = iota
	fromSnapshot
	fromCommit
)

// write is one stamped update.
type write struct {
	stamp uint64
	src   source
}

// record is an order plus the stamp of the write that last set each field.
// A write is accepted field by field when its stamp is not older than the
// field's current one, so replays converge and stale snapshots cannot undo
// newer events. A confirmed local edit also replaces values that only a
// snapshot set while the edit was in flight.
type record struct {
	order  Order
	stamps [numFields]uint64
	snap   [numFields]bool
}

func newRecord(id string) *record {
	return &record{order: Order{ID: id}}
}

func (r *record) set(f field, w write) bool {
	if w.stamp < r.stamps[f] && !(w.src == fromCommit && r.snap[f]) {
		return false
	}
	r.stamps[f] = max(r.stamps[f], w.stamp)
	r.snap[f] = w.src == fromSnapshot
	return true
}

func setField[T any](r *record, f field, dst *T, v *T, w write, eq func(a, b T) bool) bool {
	if v == nil || !r.set(f, w) {
		return false
	}
	if eq(*dst, *v) {
		return false
	}
	*dst = *v
	return true
}

func same[T comparable](a, b T) bool { return a == b }

func sameDecimal(a, b decimal.Decimal) bool { return a.Equal(b) }

func sameTime(a, b time.Time) bool { return a.Equal(b) }

func samePaidAt(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameItems(a, b []LineItem) bool {
	return slices.EqualFunc(a, b, func(x, y LineItem) bool {
		return x.ID == y.ID && x.Name == y.Name && x.Qty == y.Qty && x.Price.Equal(y.Price)
	})
}

// apply reports whether any visible field changed.
func (r *record) apply(p Patch, w write) bool {
	o := &r.order
	changed := false
	changed = setField(r, fieldVendor, &o.VendorID, p.VendorID, w, same[string]) || changed
	changed = setField(r, fieldUser, &o.UserID, p.UserID, w, same[string]) || changed
	changed = setField(r, fieldStatus, &o.Status, p.Status, w, same[Status]) || changed
	changed = setField(r, fieldPayment, &o.PaymentStatus, p.PaymentStatus, w, same[PaymentStatus]) || changed
	changed = setField(r, fieldTotal, &o.TotalAmount, p.TotalAmount, w, sameDecimal) || changed
	changed = setField(r, fieldCreated, &o.CreatedAt, p.CreatedAt, w, sameTime) || changed

	if p.PaidAt != nil {
		paid := ptr(*p.PaidAt)
		changed = setField(r, fieldPaidAt, &o.PaidAt, &paid, w, samePaidAt) || changed
	}
	if p.LineItems != nil {
		items := slices.Clone(*p.LineItems)
		changed = setField(r, fieldItems, &o.LineItems, &items, w, sameItems) || changed
	}
	return changed
}

// Merge folds incoming patches into base keyed by id, later values winning,
// and returns the result newest first. base is not modified.
func Merge(base []Order, incoming ...Patch) []Order {
	byID := make(map[string]Order, len(base)+len(incoming))
	for _, o := range base {
		if o.ID == "" {
			continue
		}
		byID[o.ID] = FromOrder(o).Apply(byID[o.ID])
	}
	for _, p := range incoming {
		if p.ID == "" {
			continue
		}
		byID[p.ID] = p.Apply(byID[p.ID])
	}
	out := make([]Order, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	Sort(out)
	return out
}

// Sort orders by CreatedAt descending, ties broken by id descending.
func Sort(list []Order) {
	slices.SortFunc(list, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(b.ID, a.ID)
	})
}

// compareIDs orders numeric ids by value so that "10" sorts after "9". All
// numeric ids sort before all other ids.
func compareIDs(a, b string) int {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(x, y)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
