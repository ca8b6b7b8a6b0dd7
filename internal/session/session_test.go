package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront-sync/internal/events"
	"storefront-sync/internal/kvstore"
	"storefront-sync/internal/kvstore/memory"
	"storefront-sync/internal/orders"
	"storefront-sync/internal/realtime"
	"storefront-sync/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pipeConn struct {
	in     chan realtime.Event
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	joins []string
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan realtime.Event, 8), closed: make(chan struct{})}
}

func (c *pipeConn) Read(ctx context.Context) (realtime.Event, error) {
	select {
	case <-ctx.Done():
		return realtime.Event{}, ctx.Err()
	case <-c.closed:
		return realtime.Event{}, realtime.ErrConnClosed
	case e := <-c.in:
		return e, nil
	}
}

func (c *pipeConn) Emit(_ context.Context, name string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, name+" "+data.(string))
	return nil
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) joined() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.joins...)
}

type mockAPI struct {
	mu           sync.Mutex
	snapshot     []byte
	snapshotErr  error
	updateErr    error
	updatedOrder string
	updatedTo    string
}

func (m *mockAPI) Snapshot(context.Context, events.Viewer) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, m.snapshotErr
}

func (m *mockAPI) UpdateStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedOrder, m.updatedTo = id, status
	return m.updateErr
}

var vendor = events.Viewer{Kind: events.ViewerVendor, ID: "V1"}

func newSession(t *testing.T, api *mockAPI) (*session.Session, *pipeConn) {
	t.Helper()
	store, err := kvstore.New(memory.NewProfile().Open(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	conn := newPipeConn()
	s, err := session.New(session.Deps{
		Viewer: vendor,
		Store:  store,
		Dialer: realtime.DialerFunc(func(context.Context) (realtime.Conn, error) { return conn, nil }),
		API:    api,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s, conn
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := session.New(session.Deps{}, zap.NewNop())
	require.ErrorIs(t, err, session.ErrMissingDependency)
}

func TestSession_StartJoinsRoomAndSeeds(t *testing.T) {
	api := &mockAPI{snapshot: []byte(`[{"id":"1","vendorId":"V1","status":"pending","createdAt":"2024-05-01T10:00:00Z"}]`)}
	s, conn := newSession(t, api)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	require.Len(t, s.Orders.List(), 1)
	require.Eventually(t, func() bool { return s.Channel.State().Online() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"vendor:join V1"}, conn.joined())
}

func TestSession_EventsReachBookAndFeed(t *testing.T) {
	s, conn := newSession(t, &mockAPI{snapshot: []byte(`[]`)})
	require.NoError(t, s.Start(context.Background()))

	conn.in <- realtime.Event{Name: events.OrderNew, Data: json.RawMessage(`{"_id":"7","VendorId":"V1","UserId":"U1","createdAt":"2024-05-01T10:00:00Z"}`)}
	conn.in <- realtime.Event{Name: events.OrderStatus, Data: json.RawMessage(`{"id":"7","status":"accepted"}`)}

	require.Eventually(t, func() bool {
		o, ok := s.Orders.Get("7")
		return ok && o.Status == orders.StatusAccepted
	}, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Notifications.UnreadCount() == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, s.Orders.Counts().Active)
}

func TestSession_UpdateOrderStatus(t *testing.T) {
	api := &mockAPI{snapshot: []byte(`[{"id":"1","vendorId":"V1","status":"pending"}]`)}
	s, _ := newSession(t, api)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.UpdateOrderStatus(context.Background(), "1", orders.StatusAccepted))
	assert.Equal(t, "1", api.updatedOrder)
	assert.Equal(t, "accepted", api.updatedTo)

	api.updateErr = errors.New("boom")
	err := s.UpdateOrderStatus(context.Background(), "1", orders.StatusRejected)
	require.Error(t, err)
	o, _ := s.Orders.Get("1")
	assert.Equal(t, orders.StatusAccepted, o.Status)
	require.NotEmpty(t, s.Toasts.Recent())
	assert.Equal(t, "Failed to reject order 1", s.Toasts.Recent()[0].Message)
}

func TestSession_FailedFirstSnapshotIsNotFatal(t *testing.T) {
	s, _ := newSession(t, &mockAPI{snapshotErr: errors.New("503")})
	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, s.Orders.List())
	assert.Len(t, s.Toasts.Recent(), 1)
}

func TestSession_DisposeIsFinal(t *testing.T) {
	s, _ := newSession(t, &mockAPI{snapshot: []byte(`[]`)})
	require.NoError(t, s.Start(context.Background()))
	s.Dispose()
	s.Dispose()
	assert.Equal(t, realtime.StatusOffline, s.Channel.State().Status)
	require.ErrorIs(t, s.Start(context.Background()), session.ErrDisposed)
}
