// Package cart owns the single-vendor shopping cart. State transitions are
// pure functions over State; Engine persists the result through a kvstore and
// adopts writes made by other browsing contexts wholesale.
package cart

import (
	"sync"

	"storefront-sync/internal/kvstore"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	KeyLines  = "cart:lines:v1"
	KeyVendor = "cart:vendor:v1"
)

type Engine struct {
	store kvstore.Store
	log   *zap.Logger

	// writeMu orders local writes; mu guards state and is never held
	// while talking to the store.
	writeMu sync.Mutex
	mu      sync.Mutex
	state   State
	subs    map[uint64]func(State)
	nextSub uint64

	unwatch []func()
}

// NewEngine loads the persisted cart and starts following external changes.
// A corrupt lines blob and a corrupt vendor blob are recovered independently.
func NewEngine(store kvstore.Store, log *zap.Logger) *Engine {
	e := &Engine{
		store: store,
		log:   log,
		subs:  make(map[uint64]func(State)),
	}
	e.state = e.load()
	e.unwatch = []func(){
		store.OnExternalChange(KeyLines, e.onLinesChanged),
		store.OnExternalChange(KeyVendor, e.onVendorChanged),
	}
	return e
}

func (e *Engine) load() State {
	var s State
	var lines []Line
	if e.store.Get(KeyLines, &lines) {
		s.Lines = sanitize(lines)
	}
	var vendor string
	if e.store.Get(KeyVendor, &vendor) {
		s.VendorID = vendor
	}
	return reconcileLock(s)
}

// reconcileLock keeps the vendor lock consistent with the lines it guards.
// Lines win: their vendor is what the user actually put in the cart.
func reconcileLock(s State) State {
	if len(s.Lines) == 0 {
		return s
	}
	v := s.Lines[0].VendorID
	kept := s.Lines[:0:0]
	for _, l := range s.Lines {
		if l.VendorID == v {
			kept = append(kept, l)
		}
	}
	s.Lines = kept
	s.VendorID = v
	return s
}

func (e *Engine) AddItem(it Item, delta int) {
	e.apply(func(s State) State { return Add(s, it, delta) })
}

func (e *Engine) SetQty(id string, qty int) {
	e.apply(func(s State) State { return SetQuantity(s, id, qty) })
}

func (e *Engine) RemoveItem(id string) {
	e.apply(func(s State) State { return Remove(s, id) })
}

func (e *Engine) Clear() {
	e.apply(Clear)
}

// SetDrawerOpen toggles the drawer flag. The flag is per context and is not
// persisted.
func (e *Engine) SetDrawerOpen(open bool) {
	e.mu.Lock()
	if e.state.DrawerOpen == open {
		e.mu.Unlock()
		return
	}
	e.state.DrawerOpen = open
	snap, subs := e.state.Clone(), e.subscribers()
	e.mu.Unlock()
	notify(subs, snap)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) Subtotal() decimal.Decimal { return e.State().Subtotal() }

func (e *Engine) TotalQty() int { return e.State().TotalQty() }

func (e *Engine) VendorID() string { return e.State().VendorID }

// Subscribe registers fn for every state change, local or external.
func (e *Engine) Subscribe(fn func(State)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// CheckoutDraft hands the current cart to the checkout flow.
func (e *Engine) CheckoutDraft() (Draft, error) {
	s := e.State()
	if s.Empty() {
		return Draft{}, ErrEmptyCart
	}
	return Draft{VendorID: s.VendorID, Lines: s.Lines, Subtotal: s.Subtotal()}, nil
}

// Close stops following external changes.
func (e *Engine) Close() {
	for _, u := range e.unwatch {
		u()
	}
}

func (e *Engine) apply(fn func(State) State) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	prev := e.state
	next := fn(prev)
	if equalState(prev, next) {
		e.mu.Unlock()
		return
	}
	e.state = next
	snap, subs := next.Clone(), e.subscribers()
	e.mu.Unlock()

	e.persist(prev, snap)
	notify(subs, snap)
}

// persist writes only the keys that changed. Failures are logged: the
// in-memory cart stays authoritative for this context.
func (e *Engine) persist(prev, next State) {
	if !equalLines(prev.Lines, next.Lines) {
		lines := next.Lines
		if lines == nil {
			lines = []Line{}
		}
		if err := e.store.Set(KeyLines, lines); err != nil {
			e.log.Error("persist cart lines", zap.Error(err))
		}
	}
	if prev.VendorID != next.VendorID {
		var err error
		if next.VendorID == "" {
			err = e.store.Remove(KeyVendor)
		} else {
			err = e.store.Set(KeyVendor, next.VendorID)
		}
		if err != nil {
			e.log.Error("persist cart vendor", zap.Error(err))
		}
	}
}

func (e *Engine) onLinesChanged(raw []byte) {
	var lines []Line
	if raw != nil && !kvstore.Unmarshal(raw, &lines) {
		e.log.Warn("malformed cart lines from another context, treating as empty")
	}
	e.replace(func(s State) State {
		s.Lines = sanitize(lines)
		if len(s.Lines) > 0 {
			s.VendorID = s.Lines[0].VendorID
		}
		return s
	})
}

func (e *Engine) onVendorChanged(raw []byte) {
	var vendor string
	if raw != nil && !kvstore.Unmarshal(raw, &vendor) {
		e.log.Warn("malformed cart vendor from another context, treating as empty")
	}
	e.replace(func(s State) State {
		if len(s.Lines) > 0 && vendor != s.Lines[0].VendorID {
			// замок уже определяется строками
			return s
		}
		s.VendorID = vendor
		return s
	})
}

// replace adopts externally written state without writing it back.
func (e *Engine) replace(fn func(State) State) {
	e.mu.Lock()
	next := fn(e.state.Clone())
	if equalState(e.state, next) {
		e.mu.Unlock()
		return
	}
	e.state = next
	snap, subs := next.Clone(), e.subscribers()
	e.mu.Unlock()
	notify(subs, snap)
}

func (e *Engine) subscribers() []func(State) {
	out := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s.Clone())
	}
}

func equalState(a, b State) bool {
	return a.VendorID == b.VendorID && a.DrawerOpen == b.DrawerOpen && equalLines(a.Lines, b.Lines)
}

func equalLines(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Name != y.Name || x.Qty != y.Qty ||
			x.VendorID != y.VendorID || !x.Price.Equal(y.Price) {
			return false
		}
	}
	return true
}
