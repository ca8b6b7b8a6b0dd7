// Package memory is an in-process kvstore backend. A Profile holds the data;
// every Context opened on it behaves like a separate tab of the same browser
// profile.
package memory

import (
	"context"
	"sync"

	"storefront-sync/internal/kvstore"

	"github.com/google/uuid"
)

type Profile struct {
	mu       sync.Mutex
	data     map[string][]byte
	contexts map[string]*Context
}

func NewProfile() *Profile {
	return &Profile{
		data:     make(map[string][]byte),
		contexts: make(map[string]*Context),
	}
}

// Open returns a new browsing context on the profile.
func (p *Profile) Open() *Context {
	c := &Context{profile: p, origin: uuid.NewString()}
	p.mu.Lock()
	p.contexts[c.origin] = c
	p.mu.Unlock()
	return c
}

// Raw returns the stored bytes for key, for tests and debugging.
func (p *Profile) Raw(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return append([]byte(nil), v...), ok
}

// Context implements kvstore.Backend. Changes are delivered to the other
// contexts before Save/Delete return.
type Context struct {
	profile *Profile
	origin  string

	mu     sync.Mutex
	sink   func(kvstore.Change)
	closed bool
}

func (c *Context) Origin() string { return c.origin }

func (c *Context) Load(_ context.Context, key string) ([]byte, error) {
	if c.isClosed() {
		return nil, kvstore.ErrClosed
	}
	c.profile.mu.Lock()
	defer c.profile.mu.Unlock()
	v, ok := c.profile.data[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (c *Context) Save(_ context.Context, key string, value []byte) error {
	if c.isClosed() {
		return kvstore.ErrClosed
	}
	v := append([]byte(nil), value...)
	c.profile.mu.Lock()
	c.profile.data[key] = v
	peers := c.peers()
	c.profile.mu.Unlock()

	for _, sink := range peers {
		sink(kvstore.Change{Key: key, Value: append([]byte(nil), v...)})
	}
	return nil
}

func (c *Context) Delete(_ context.Context, key string) error {
	if c.isClosed() {
		return kvstore.ErrClosed
	}
	c.profile.mu.Lock()
	delete(c.profile.data, key)
	peers := c.peers()
	c.profile.mu.Unlock()

	for _, sink := range peers {
		sink(kvstore.Change{Key: key, Removed: true})
	}
	return nil
}

func (c *Context) Watch(fn func(kvstore.Change)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return kvstore.ErrClosed
	}
	c.sink = fn
	return nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	c.closed = true
	c.sink = nil
	c.mu.Unlock()

	c.profile.mu.Lock()
	delete(c.profile.contexts, c.origin)
	c.profile.mu.Unlock()
	return nil
}

// peers must be called with profile.mu held.
func (c *Context) peers() []func(kvstore.Change) {
	var out []func(kvstore.Change)
	for origin, other := range c.profile.contexts {
		if origin == c.origin {
			continue
		}
		other.mu.Lock()
		if other.sink != nil && !other.closed {
			out = append(out, other.sink)
		}
		other.mu.Unlock()
	}
	return out
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
