package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-sync/internal/realtime"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	events chan realtime.Event
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	emitted []realtime.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan realtime.Event, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (realtime.Event, error) {
	select {
	case <-ctx.Done():
		return realtime.Event{}, ctx.Err()
	case <-c.closed:
		return realtime.Event{}, realtime.ErrConnClosed
	case e := <-c.events:
		return e, nil
	}
}

func (c *fakeConn) Emit(_ context.Context, name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, realtime.Event{Name: name, Data: raw})
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(name, data string) {
	c.events <- realtime.Event{Name: name, Data: json.RawMessage(data)}
}

func (c *fakeConn) joins() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.emitted {
		var id string
		_ = json.Unmarshal(e.Data, &id)
		out = append(out, e.Name+" "+id)
	}
	return out
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeDialer hands out queued results, blocking until one is queued.
type fakeDialer struct {
	results chan dialResult
	mu      sync.Mutex
	dials   int
}

func newFakeDialer() *fakeDialer { return &fakeDialer{results: make(chan dialResult, 8)} }

func (d *fakeDialer) Dial(ctx context.Context) (realtime.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-d.results:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func fastBackoff() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func startChannel(t *testing.T, d realtime.Dialer, opts ...realtime.Option) *realtime.Channel {
	t.Helper()
	opts = append([]realtime.Option{realtime.WithBackoff(fastBackoff)}, opts...)
	ch := realtime.NewChannel(d, zap.NewNop(), opts...)
	require.NoError(t, ch.Start(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) handler(data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, string(data))
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestChannel_EverySubscriberGetsEveryEventOnce(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.results <- dialResult{conn: conn}

	ch := startChannel(t, d)
	var a, b, other recorder
	ch.On("order:new", a.handler)
	ch.On("order:new", b.handler)
	ch.On("order:status", other.handler)

	conn.push("order:new", `1`)
	conn.push("order:new", `2`)
	conn.push("order:new", `3`)

	want := []string{"1", "2", "3"}
	require.Eventually(t, func() bool { return len(a.values()) == 3 && len(b.values()) == 3 }, waitFor, time.Millisecond)
	assert.Equal(t, want, a.values())
	assert.Equal(t, want, b.values())
	assert.Empty(t, other.values())
}

func TestChannel_OffAndPanickingHandler(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.results <- dialResult{conn: conn}

	ch := startChannel(t, d)
	var kept, dropped recorder
	ch.On("e", func(json.RawMessage) { panic("boom") })
	sub := ch.On("e", dropped.handler)
	ch.On("e", kept.handler)
	ch.Off(sub)
	sub.Unsubscribe()

	conn.push("e", `"x"`)
	require.Eventually(t, func() bool { return len(kept.values()) == 1 }, waitFor, time.Millisecond)
	assert.Empty(t, dropped.values())
	assert.True(t, ch.State().Online(), "a panicking handler must not drop the connection")
}

func TestChannel_RoomsRejoinedAfterReconnect(t *testing.T) {
	d := newFakeDialer()
	first, second := newFakeConn(), newFakeConn()
	d.results <- dialResult{conn: first}

	ch := realtime.NewChannel(d, zap.NewNop(), realtime.WithBackoff(fastBackoff))
	ch.JoinRoom(context.Background(), "vendor", "V1")
	require.NoError(t, ch.Start(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })

	require.Eventually(t, func() bool { return ch.State().Online() }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"vendor:join V1"}, first.joins())

	ch.JoinRoom(context.Background(), "user", "U1")
	ch.JoinRoom(context.Background(), "user", "U1")
	assert.Equal(t, []string{"vendor:join V1", "user:join U1"}, first.joins())

	d.results <- dialResult{conn: second}
	_ = first.Close()

	require.Eventually(t, func() bool { return len(second.joins()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []string{"vendor:join V1", "user:join U1"}, second.joins())
	assert.Len(t, ch.Rooms(), 2)
}

func TestChannel_StateTransitions(t *testing.T) {
	d := newFakeDialer()
	conn := newFakeConn()
	d.results <- dialResult{err: errors.New("handshake refused")}
	d.results <- dialResult{conn: conn}

	ch := realtime.NewChannel(d, zap.NewNop(), realtime.WithBackoff(fastBackoff))
	assert.Equal(t, realtime.StatusOffline, ch.State().Status)

	var mu sync.Mutex
	var seen []realtime.Status
	ch.OnStateChange(func(s realtime.ConnectionState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Status)
	})
	require.NoError(t, ch.Start(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })

	require.Eventually(t, func() bool { return ch.State().Online() }, waitFor, time.Millisecond)
	_ = conn.Close()
	require.Eventually(t, func() bool { return d.dialCount() == 3 }, waitFor, time.Millisecond)

	mu.Lock()
	got := append([]realtime.Status(nil), seen...)
	mu.Unlock()
	assert.Equal(t, []realtime.Status{
		realtime.StatusConnecting,
		realtime.StatusError,
		realtime.StatusConnecting,
		realtime.StatusOnline,
		realtime.StatusOffline,
		realtime.StatusConnecting,
	}, got)
}

func TestChannel_ManualRetryIsRateLimited(t *testing.T) {
	d := newFakeDialer()
	d.results <- dialResult{err: errors.New("down")}
	d.results <- dialResult{err: errors.New("still down")}

	slow := func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }
	ch := startChannel(t, d,
		realtime.WithBackoff(slow),
		realtime.WithRetryLimit(rate.NewLimiter(rate.Every(time.Hour), 1)),
	)

	require.Eventually(t, func() bool { return ch.State().Status == realtime.StatusError }, waitFor, time.Millisecond)
	assert.True(t, ch.Retry())
	require.Eventually(t, func() bool {
		return d.dialCount() == 2 && ch.State().Status == realtime.StatusError
	}, waitFor, time.Millisecond)
	assert.False(t, ch.Retry(), "second retry within the window is refused")
}

func TestChannel_Lifecycle(t *testing.T) {
	ch := realtime.NewChannel(newFakeDialer(), zap.NewNop())
	assert.False(t, ch.Retry(), "nothing to retry before start")
	require.ErrorIs(t, ch.Emit(context.Background(), "x", nil), realtime.ErrOffline)

	require.NoError(t, ch.Start(context.Background()))
	require.ErrorIs(t, ch.Start(context.Background()), realtime.ErrAlreadyStarted)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, realtime.StatusOffline, ch.State().Status)
	require.ErrorIs(t, ch.Start(context.Background()), realtime.ErrClosed)
}
