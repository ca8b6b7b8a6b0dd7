// Package kvstore is the profile-local persistent key-value store shared by
// the cart and the notification feed. Values are JSON encoded; reads fail soft
// and change notifications only cross browsing contexts.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("kvstore: key not found")
	ErrClosed   = errors.New("kvstore: store closed")
)

const opTimeout = 5 * time.Second

// Change is a write made by another browsing context. Removed changes carry
// no value.
type Change struct {
	Key     string
	Value   []byte
	Removed bool
}

// Backend is the raw storage beneath the adapter. Watch delivers only
// changes whose origin differs from the backend's own context.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Watch(fn func(Change)) error
	Close() error
}

// ChangeFunc receives the raw value written by another context; nil means the
// key was removed.
type ChangeFunc func(raw []byte)

type Store interface {
	Get(key string, dst any) bool
	Set(key string, v any) error
	Remove(key string) error
	OnExternalChange(key string, fn ChangeFunc) (unsubscribe func())
}

type listener struct {
	id uint64
	fn ChangeFunc
}

// Adapter implements Store on top of a Backend.
type Adapter struct {
	backend Backend
	log     *zap.Logger

	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    uint64
	closed    bool
}

func New(backend Backend, log *zap.Logger) (*Adapter, error) {
	a := &Adapter{
		backend:   backend,
		log:       log,
		listeners: make(map[string][]listener),
	}
	if err := backend.Watch(a.dispatch); err != nil {
		return nil, fmt.Errorf("watch store: %w", err)
	}
	return a, nil
}

// Get decodes the stored value into dst. Absent or malformed values leave dst
// untouched and report false.
func (a *Adapter) Get(key string, dst any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := a.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Warn("kv read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if !Unmarshal(raw, dst) {
		a.log.Warn("malformed kv value, using empty state", zap.String("key", key))
		return false
	}
	return true
}

func (a *Adapter) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := a.backend.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := a.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) OnExternalChange(key string, fn ChangeFunc) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners[key] = append(a.listeners[key], listener{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			ls := a.listeners[key]
			for i, l := range ls {
				if l.id == id {
					a.listeners[key] = append(ls[:i:i], ls[i+1:]...)
					break
				}
			}
			if len(a.listeners[key]) == 0 {
				delete(a.listeners, key)
			}
		})
	}
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.listeners = make(map[string][]listener)
	a.mu.Unlock()
	return a.backend.Close()
}

func (a *Adapter) dispatch(c Change) {
	a.mu.RLock()
	ls := append([]listener(nil), a.listeners[c.Key]...)
	a.mu.RUnlock()

	var raw []byte
	if !c.Removed {
		raw = c.Value
	}
	for _, l := range ls {
		a.safeCall(c.Key, l.fn, raw)
	}
}

func (a *Adapter) safeCall(key string, fn ChangeFunc, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("kv change listener panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()
	fn(raw)
}
