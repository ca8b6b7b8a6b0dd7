// Package redistransport carries realtime events over Redis pub/sub. Rooms
// are channels named <prefix>:<kind>:<id>; everything a client emits other
// than a room join is published to <prefix>:inbound.
package redistransport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"storefront-sync/internal/realtime"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func BroadcastChannel(prefix string) string { return prefix + ":broadcast" }

func InboundChannel(prefix string) string { return prefix + ":inbound" }

func RoomChannel(prefix, kind, id string) string { return prefix + ":" + kind + ":" + id }

// Publish is the server side of the transport: it pushes one event to a
// channel.
func Publish(ctx context.Context, client *redis.Client, channel, name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(message{Event: name, Data: raw})
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, msg).Err()
}

type Dialer struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

func NewDialer(client *redis.Client, prefix string, log *zap.Logger) *Dialer {
	return &Dialer{client: client, prefix: prefix, log: log}
}

func (d *Dialer) Dial(ctx context.Context) (realtime.Conn, error) {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	ps := d.client.Subscribe(ctx, BroadcastChannel(d.prefix))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", BroadcastChannel(d.prefix), err)
	}
	return &conn{
		client: d.client,
		prefix: d.prefix,
		log:    d.log,
		ps:     ps,
		msgs:   ps.Channel(),
	}, nil
}

type conn struct {
	client *redis.Client
	prefix string
	log    *zap.Logger

	ps        *redis.PubSub
	msgs      <-chan *redis.Message
	closeOnce sync.Once
}

func (c *conn) Read(ctx context.Context) (realtime.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return realtime.Event{}, ctx.Err()
		case m, ok := <-c.msgs:
			if !ok {
				return realtime.Event{}, realtime.ErrConnClosed
			}
			var msg message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil || msg.Event == "" {
				c.log.Warn("dropping malformed realtime message", zap.String("channel", m.Channel))
				continue
			}
			return realtime.Event{Name: msg.Event, Data: msg.Data}, nil
		}
	}
}

// Emit turns "<kind>:join" into a subscription on the room channel.
func (c *conn) Emit(ctx context.Context, name string, data any) error {
	if kind, ok := strings.CutSuffix(name, ":join"); ok {
		id, ok := data.(string)
		if !ok || id == "" {
			return fmt.Errorf("join %s: room id must be a non-empty string", kind)
		}
		return c.ps.Subscribe(ctx, RoomChannel(c.prefix, kind, id))
	}
	return Publish(ctx, c.client, InboundChannel(c.prefix), name, data)
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ps.Close() })
	return err
}
