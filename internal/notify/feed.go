package notify

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"storefront-sync/internal/events"
	"storefront-sync/internal/kvstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	Key        = "notifications:v1"
	DefaultCap = 50
)

// Forwarder receives every record the feed creates. It must not block.
type Forwarder interface {
	Forward(r Record)
}

type Option func(*Feed)

func WithCap(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.cap = n
		}
	}
}

func WithViewer(v events.Viewer) Option {
	return func(f *Feed) { f.viewer = v }
}

func WithForwarder(fw Forwarder) Option {
	return func(f *Feed) { f.forwarder = fw }
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// Feed is the notification list, newest first.
type Feed struct {
	store     kvstore.Store
	log       *zap.Logger
	cap       int
	viewer    events.Viewer
	forwarder Forwarder
	now       func() time.Time

	// writeMu orders local writes; mu is released before the store is called
	writeMu sync.Mutex
	mu      sync.Mutex
	items   []Record
	subs    map[uint64]func([]Record)
	nextSub uint64
	unwatch func()
	unbind  []func()
}

func NewFeed(store kvstore.Store, log *zap.Logger, opts ...Option) *Feed {
	f := &Feed{
		store: store,
		log:   log,
		cap:   DefaultCap,
		now:   time.Now,
		subs:  make(map[uint64]func([]Record)),
	}
	for _, o := range opts {
		o(f)
	}
	var items []Record
	if store.Get(Key, &items) {
		f.items = f.sanitize(items)
	}
	f.unwatch = store.OnExternalChange(Key, f.onExternal)
	return f
}

func (f *Feed) sanitize(items []Record) []Record {
	out := make([]Record, 0, min(len(items), f.cap))
	for _, r := range items {
		if r.ID == "" {
			continue
		}
		out = append(out, r)
		if len(out) == f.cap {
			break
		}
	}
	return out
}

// Bind records a notification for every order and payment event of src.
func (f *Feed) Bind(src events.Source) {
	for _, name := range events.Names() {
		unsubscribe := src.Subscribe(name, func(data json.RawMessage) {
			f.HandleEvent(name, data)
		})
		f.mu.Lock()
		f.unbind = append(f.unbind, unsubscribe)
		f.mu.Unlock()
	}
}

func (f *Feed) HandleEvent(name string, data json.RawMessage) bool {
	r, ok := Compose(f.viewer, name, data)
	if !ok {
		return false
	}
	f.Add(r)
	return true
}

// Add prepends r, evicting the oldest records beyond the cap. Missing id and
// timestamp are filled in.
func (f *Feed) Add(r Record) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = f.now()
	}
	if r.Kind == "" {
		r.Kind = KindInfo
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.Lock()
	items := make([]Record, 0, f.cap)
	items = append(items, r)
	items = append(items, f.items...)
	if len(items) > f.cap {
		items = items[:f.cap]
	}
	f.items = items
	f.commitLocked()

	if f.forwarder != nil {
		f.forwarder.Forward(r)
	}
	return r
}

func (f *Feed) MarkAllRead() {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.Lock()
	changed := false
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			changed = true
		}
	}
	if !changed {
		f.mu.Unlock()
		return
	}
	f.commitLocked()
}

func (f *Feed) MarkRead(id string) bool {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.Lock()
	i := slices.IndexFunc(f.items, func(r Record) bool { return r.ID == id })
	if i < 0 || f.items[i].Read {
		f.mu.Unlock()
		return i >= 0
	}
	f.items[i].Read = true
	f.commitLocked()
	return true
}

func (f *Feed) ClearAll() {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.Lock()
	f.items = nil
	f.commitLocked()
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.items {
		if !r.Read {
			n++
		}
	}
	return n
}

func (f *Feed) List() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

func (f *Feed) Subscribe(fn func([]Record)) (unsubscribe func()) {
	f.mu.Lock()
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Close detaches the feed from its event sources and the store.
func (f *Feed) Close() {
	f.mu.Lock()
	fns := append(f.unbind, f.unwatch)
	f.unbind, f.unwatch = nil, nil
	f.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

// onExternal adopts another context's list wholesale.
func (f *Feed) onExternal(raw []byte) {
	var items []Record
	if raw != nil && !kvstore.Unmarshal(raw, &items) {
		f.log.Warn("malformed notification feed from another context, treating as empty")
	}
	f.mu.Lock()
	f.items = f.sanitize(items)
	f.notifyLocked()
}

// commitLocked releases f.mu, then persists the list and notifies
// subscribers. Callers hold f.writeMu.
func (f *Feed) commitLocked() {
	items := slices.Clone(f.items)
	if items == nil {
		items = []Record{}
	}
	f.mu.Unlock()

	if err := f.store.Set(Key, items); err != nil {
		f.log.Error("persist notifications", zap.Error(err))
	}
	f.mu.Lock()
	f.notifyLocked()
}

func (f *Feed) notifyLocked() {
	snap := slices.Clone(f.items)
	subs := make([]func([]Record), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(slices.Clone(snap))
	}
}
