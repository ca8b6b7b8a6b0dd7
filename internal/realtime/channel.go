// Package realtime is the shared push-event connection of a session. One
// Channel fans events out to any number of subscribers, reconnects forever
// with exponential backoff and re-joins its rooms after every reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxRetryDelay = 30 * time.Second

type Handler func(data json.RawMessage)

// Subscription is the handle returned by On. Funcs are not comparable, so
// Off takes the handle rather than the handler.
type Subscription struct {
	event string
	fn    Handler
	ch    *Channel
	once  sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.ch.remove(s) })
}

type Option func(*Channel)

// WithBackoff replaces the reconnect policy. A policy returning backoff.Stop
// is treated as its maximum delay: the channel never gives up.
func WithBackoff(newPolicy func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackoff = newPolicy }
}

// WithRetryLimit sets how often a manual retry may cut a backoff wait short.
func WithRetryLimit(l *rate.Limiter) Option {
	return func(c *Channel) { c.retryLimit = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

type Channel struct {
	dialer     Dialer
	log        *zap.Logger
	newBackoff func() backoff.BackOff
	retryLimit *rate.Limiter
	now        func() time.Time

	mu        sync.Mutex
	handlers  map[string][]*Subscription
	rooms     []Room
	conn      Conn
	state     ConnectionState
	watchers  map[uint64]func(ConnectionState)
	nextWatch uint64
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}

	retry chan struct{}
}

func NewChannel(dialer Dialer, log *zap.Logger, opts ...Option) *Channel {
	c := &Channel{
		dialer:     dialer,
		log:        log,
		newBackoff: defaultBackoff,
		retryLimit: rate.NewLimiter(rate.Every(time.Second), 1),
		now:        time.Now,
		handlers:   make(map[string][]*Subscription),
		watchers:   make(map[uint64]func(ConnectionState)),
		retry:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	c.state = ConnectionState{Status: StatusOffline, Since: c.now()}
	return c
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	return b
}

// On registers fn for name. Every subscription receives every event once, in
// delivery order.
func (c *Channel) On(name string, fn Handler) *Subscription {
	s := &Subscription{event: name, fn: fn, ch: c}
	c.mu.Lock()
	c.handlers[name] = append(c.handlers[name], s)
	c.mu.Unlock()
	return s
}

func (c *Channel) Off(s *Subscription) {
	if s != nil {
		s.Unsubscribe()
	}
}

// Subscribe is On in the shape consumers outside this package expect.
func (c *Channel) Subscribe(name string, fn func(data json.RawMessage)) func() {
	return c.On(name, fn).Unsubscribe
}

func (c *Channel) remove(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := c.handlers[s.event]
	for i, h := range hs {
		if h == s {
			c.handlers[s.event] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(c.handlers[s.event]) == 0 {
		delete(c.handlers, s.event)
	}
}

// JoinRoom records the room and announces it now if connected. Recorded rooms
// are announced again after every reconnect.
func (c *Channel) JoinRoom(ctx context.Context, kind, id string) {
	r := Room{Kind: kind, ID: id}
	c.mu.Lock()
	for _, have := range c.rooms {
		if have == r {
			c.mu.Unlock()
			return
		}
	}
	c.rooms = append(c.rooms, r)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Emit(ctx, JoinEvent(kind), id); err != nil {
		// обрыв: комната будет объявлена заново после переподключения
		c.log.Warn("room join failed", zap.String("room", r.String()), zap.Error(err))
		_ = conn.Close()
	}
}

func (c *Channel) Rooms() []Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Room(nil), c.rooms...)
}

// Emit sends an event on the current connection.
func (c *Channel) Emit(ctx context.Context, name string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrOffline
	}
	return conn.Emit(ctx, name, data)
}

func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for every status transition.
func (c *Channel) OnStateChange(fn func(ConnectionState)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextWatch++
	id := c.nextWatch
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// Start launches the connection loop. It returns immediately; progress is
// visible through State and OnStateChange.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
	return nil
}

// Running reports whether Start was called and Close was not.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closed
}

// Retry cuts the current backoff wait short. It reports false when there is
// nothing to retry or the call was rate limited.
func (c *Channel) Retry() bool {
	c.mu.Lock()
	st := c.state.Status
	running := c.started && !c.closed
	c.mu.Unlock()
	if !running || st == StatusOnline || st == StatusConnecting {
		return false
	}
	if !c.retryLimit.Allow() {
		return false
	}
	select {
	case c.retry <- struct{}{}:
	default:
	}
	return true
}

// Close stops the loop and drops the connection. Subscriptions are kept so a
// closed channel simply goes quiet.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StatusOffline, nil)
	return nil
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	policy := c.newBackoff()
	policy.Reset()

	for {
		c.setState(StatusConnecting, nil)
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("realtime connect failed", zap.Error(err))
			c.setState(StatusError, err)
			if !c.wait(ctx, policy) {
				return
			}
			continue
		}

		if err := c.attach(ctx, conn); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("realtime room join failed", zap.Error(err))
			c.setState(StatusError, err)
			if !c.wait(ctx, policy) {
				return
			}
			continue
		}
		policy.Reset()
		c.setState(StatusOnline, nil)
		c.log.Info("realtime connected")

		err = c.readLoop(ctx, conn)
		c.detach(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("realtime connection lost", zap.Error(err))
		c.setState(StatusOffline, err)
		if !c.wait(ctx, policy) {
			return
		}
	}
}

// attach publishes conn and re-announces every recorded room. Rooms joined
// after the snapshot are announced by JoinRoom itself.
func (c *Channel) attach(ctx context.Context, conn Conn) error {
	c.mu.Lock()
	c.conn = conn
	rooms := append([]Room(nil), c.rooms...)
	c.mu.Unlock()

	for _, r := range rooms {
		if err := conn.Emit(ctx, JoinEvent(r.Kind), r.ID); err != nil {
			c.detach(conn)
			return err
		}
	}
	return nil
}

func (c *Channel) detach(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	for {
		evt, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(evt)
	}
}

func (c *Channel) dispatch(evt Event) {
	c.mu.Lock()
	subs := append([]*Subscription(nil), c.handlers[evt.Name]...)
	c.mu.Unlock()

	for _, s := range subs {
		c.safeCall(evt, s.fn)
	}
}

func (c *Channel) safeCall(evt Event, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("realtime handler panicked", zap.String("event", evt.Name), zap.Any("panic", r))
		}
	}()
	fn(evt.Data)
}

func (c *Channel) wait(ctx context.Context, policy backoff.BackOff) bool {
	d := policy.NextBackOff()
	if d == backoff.Stop {
		d = maxRetryDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-c.retry:
		return true
	}
}

func (c *Channel) setState(st Status, err error) {
	c.mu.Lock()
	if c.state.Status == st {
		c.mu.Unlock()
		return
	}
	c.state = ConnectionState{Status: st, Since: c.now(), Err: err}
	snap := c.state
	ws := make([]func(ConnectionState), 0, len(c.watchers))
	for _, fn := range c.watchers {
		ws = append(ws, fn)
	}
	c.mu.Unlock()

	for _, fn := range ws {
		fn(snap)
	}
}
