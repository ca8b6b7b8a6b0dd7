// Package toast carries transient user-facing messages: failed actions and
// degraded refreshes. Nothing here is persisted.
package toast

import (
	"slices"
	"sync"
	"time"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Toast struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Toaster interface {
	Toast(kind Kind, message string)
}

// Discard drops every toast.
type Discard struct{}

func (Discard) Toast(Kind, string) {}

// Ring keeps the most recent toasts for surfaces that poll for them.
type Ring struct {
	mu   sync.Mutex
	cap  int
	buf  []Toast
	now  func() time.Time
	subs []func(Toast)
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{cap: capacity, now: time.Now}
}

func (r *Ring) Toast(kind Kind, message string) {
	r.mu.Lock()
	t := Toast{Kind: kind, Message: message, At: r.now()}
	r.buf = append(r.buf, t)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
	subs := slices.Clone(r.subs)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}

// OnToast registers fn for every new toast. Intended for long-lived
// listeners such as the logger bridge.
func (r *Ring) OnToast(fn func(Toast)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// Recent returns toasts newest first.
func (r *Ring) Recent() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.buf))
	for i, t := range r.buf {
		out[len(r.buf)-1-i] = t
	}
	return out
}
