package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"storefront-sync/internal/events"
	"storefront-sync/internal/toast"

	"go.uber.org/zap"
)

type pending struct {
	token uint64
	patch Patch
}

type BookOption func(*Book)

func WithToaster(t toast.Toaster) BookOption {
	return func(b *Book) { b.toaster = t }
}

// Book owns the canonical order list of one viewer. Every input (snapshots,
// push events, optimistic edits) goes through it, and UI surfaces read
// derived views from it.
type Book struct {
	viewer  events.Viewer
	log     *zap.Logger
	toaster toast.Toaster

	mu        sync.Mutex
	clock     uint64
	records   map[string]*record
	pending   map[string][]pending
	nextToken uint64
	view      []Order
	subs      map[uint64]func([]Order)
	nextSub   uint64
	unbind    []func()
}

func NewBook(viewer events.Viewer, log *zap.Logger, opts ...BookOption) *Book {
	b := &Book{
		viewer:  viewer,
		log:     log,
		toaster: toast.Discard{},
		records: make(map[string]*record),
		pending: make(map[string][]pending),
		subs:    make(map[uint64]func([]Order)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Book) Viewer() events.Viewer { return b.viewer }

// Mark reserves a stamp. A snapshot requested at Mark and applied later loses
// to any event that arrived in between.
func (b *Book) Mark() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock++
	return b.clock
}

// Seed merges an initial snapshot.
func (b *Book) Seed(patches []Patch) {
	b.ApplySnapshot(patches, b.Mark())
}

// ApplySnapshot merges a REST snapshot. Orders missing from the snapshot are
// kept; in-flight optimistic edits stay on top.
func (b *Book) ApplySnapshot(patches []Patch, stamp uint64) {
	b.mu.Lock()
	changed := false
	for _, p := range patches {
		if p.ID == "" {
			continue
		}
		rec, ok := b.records[p.ID]
		if !ok {
			rec = newRecord(p.ID)
			b.records[p.ID] = rec
			changed = true
		}
		if rec.apply(p, write{stamp: stamp, src: fromSnapshot}) {
			changed = true
		}
	}
	b.commitLocked(changed)
}

// HandleEvent applies one push event and reports whether the list changed.
// Unparseable payloads, events for other viewers and updates for orders this
// book has never seen are dropped.
func (b *Book) HandleEvent(name string, data json.RawMessage) bool {
	payload, ok := events.Parse(data)
	if !ok {
		b.log.Debug("dropping malformed order event", zap.String("event", name))
		return false
	}

	switch name {
	case events.OrderNew:
		p, ok := PatchFromPayload(payload, events.IDKeys)
		if !ok {
			return false
		}
		if !b.viewer.Scopes(deref(p.VendorID), deref(p.UserID)) {
			return false
		}
		return b.merge(p, true)

	case events.OrderStatus, events.OrderPayment:
		p, ok := PatchFromPayload(payload, events.OrderIDKeys)
		if !ok {
			return false
		}
		return b.merge(p, false)

	case events.PaymentProcessing, events.PaymentSuccess, events.PaymentFailed:
		p, ok := PatchFromPayload(payload, events.OrderIDKeys)
		if !ok {
			return false
		}
		p.PaymentStatus = ptr(paymentFromEvent(name))
		return b.merge(p, false)
	}
	return false
}

func paymentFromEvent(name string) PaymentStatus {
	switch name {
	case events.PaymentSuccess:
		return PaymentPaid
	case events.PaymentFailed:
		return PaymentFailed
	default:
		return PaymentProcessing
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (b *Book) merge(p Patch, create bool) bool {
	b.mu.Lock()
	rec, ok := b.records[p.ID]
	if !ok {
		if !create {
			b.mu.Unlock()
			return false
		}
		rec = newRecord(p.ID)
		b.records[p.ID] = rec
	}
	b.clock++
	changed := rec.apply(p, write{stamp: b.clock, src: fromEvent}) || !ok
	b.commitLocked(changed)
	return changed
}

// Bind subscribes the book to every order and payment event of src.
func (b *Book) Bind(src events.Source) {
	for _, name := range events.Names() {
		unsubscribe := src.Subscribe(name, func(data json.RawMessage) {
			b.HandleEvent(name, data)
		})
		b.mu.Lock()
		b.unbind = append(b.unbind, unsubscribe)
		b.mu.Unlock()
	}
}

// Close detaches the book from its event sources.
func (b *Book) Close() {
	b.mu.Lock()
	fns := b.unbind
	b.unbind = nil
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Mutate shows patch immediately and runs commit. On success the patch
// becomes part of the base with the stamp reserved before commit, so events
// that arrived meanwhile still win; on failure it is rolled back and the user gets a
// toast naming action.
func (b *Book) Mutate(ctx context.Context, id string, patch Patch, action string, commit func(context.Context) error) error {
	patch.ID = id

	b.mu.Lock()
	if _, ok := b.records[id]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("%s order %s: %w", action, id, ErrUnknownOrder)
	}
	b.nextToken++
	token := b.nextToken
	// штамп берётся до commit: событие, пришедшее во время запроса, новее
	b.clock++
	stamp := b.clock
	b.pending[id] = append(b.pending[id], pending{token: token, patch: patch})
	b.commitLocked(true)

	err := commit(ctx)

	b.mu.Lock()
	b.pending[id] = slices.DeleteFunc(b.pending[id], func(p pending) bool { return p.token == token })
	if len(b.pending[id]) == 0 {
		delete(b.pending, id)
	}
	if err == nil {
		if rec, ok := b.records[id]; ok {
			rec.apply(patch, write{stamp: stamp, src: fromCommit})
		}
	}
	b.commitLocked(true)

	if err != nil {
		b.log.Warn("order mutation rejected", zap.String("order_id", id), zap.String("action", action), zap.Error(err))
		b.toaster.Toast(toast.KindError, fmt.Sprintf("Failed to %s order %s", action, id))
		return fmt.Errorf("%s order %s: %w", action, id, err)
	}
	return nil
}

// commitLocked rebuilds the view when changed and notifies subscribers. It
// releases b.mu.
func (b *Book) commitLocked(changed bool) {
	if !changed {
		b.mu.Unlock()
		return
	}
	view := make([]Order, 0, len(b.records))
	for id, rec := range b.records {
		o := rec.order.clone()
		for _, p := range b.pending[id] {
			o = p.patch.Apply(o)
		}
		view = append(view, o)
	}
	Sort(view)
	b.view = view

	subs := make([]func([]Order), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(cloneList(view))
	}
}

func cloneList(list []Order) []Order {
	out := make([]Order, len(list))
	for i, o := range list {
		out[i] = o.clone()
	}
	return out
}

// List returns the reconciled list, newest first.
func (b *Book) List() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneList(b.view)
}

func (b *Book) Get(id string) (Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.view {
		if o.ID == id {
			return o.clone(), true
		}
	}
	return Order{}, false
}

func (b *Book) Filter(keep func(Order) bool) []Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Order
	for _, o := range b.view {
		if keep(o) {
			out = append(out, o.clone())
		}
	}
	return out
}

func (b *Book) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CountOrders(b.view)
}

// Subscribe registers fn for every change of the list.
func (b *Book) Subscribe(fn func([]Order)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
