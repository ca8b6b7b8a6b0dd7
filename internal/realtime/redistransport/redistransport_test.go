package redistransport_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront-sync/internal/realtime"
	"storefront-sync/internal/realtime/redistransport"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func subscribed(t *testing.T, client *redis.Client, channel string) {
	t.Helper()
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(context.Background(), channel).Result()
		return err == nil && n[channel] == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConn_BroadcastAndRoom(t *testing.T) {
	_, client := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := redistransport.NewDialer(client, "rt", zap.NewNop()).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, client.Publish(ctx, redistransport.BroadcastChannel("rt"), "not json").Err())
	require.NoError(t, redistransport.Publish(ctx, client, redistransport.BroadcastChannel("rt"), "order:new", map[string]string{"id": "1"}))

	evt, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order:new", evt.Name)
	assert.JSONEq(t, `{"id":"1"}`, string(evt.Data))

	room := redistransport.RoomChannel("rt", "vendor", "V1")
	require.NoError(t, conn.Emit(ctx, realtime.JoinEvent("vendor"), "V1"))
	subscribed(t, client, room)

	require.NoError(t, redistransport.Publish(ctx, client, room, "order:status", map[string]string{"id": "1", "status": "ready"}))
	evt, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order:status", evt.Name)
}

func TestConn_EmitPublishesInbound(t *testing.T) {
	_, client := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	inbound := client.Subscribe(ctx, redistransport.InboundChannel("rt"))
	defer inbound.Close()
	_, err := inbound.Receive(ctx)
	require.NoError(t, err)

	conn, err := redistransport.NewDialer(client, "rt", zap.NewNop()).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Emit(ctx, "typing", map[string]bool{"on": true}))
	m, err := inbound.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(m.Payload), &got))
	assert.Equal(t, "typing", got.Event)
	assert.JSONEq(t, `{"on":true}`, string(got.Data))

	require.Error(t, conn.Emit(ctx, "user:join", 42))
}

func TestConn_ClosedReadFails(t *testing.T) {
	_, client := setup(t)
	conn, err := redistransport.NewDialer(client, "rt", zap.NewNop()).Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = conn.Read(ctx)
	require.ErrorIs(t, err, realtime.ErrConnClosed)
}

func TestDialer_ServerDown(t *testing.T) {
	mr, client := setup(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := redistransport.NewDialer(client, "rt", zap.NewNop()).Dial(ctx)
	require.Error(t, err)
}
