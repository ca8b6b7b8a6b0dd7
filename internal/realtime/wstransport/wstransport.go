// Package wstransport carries realtime events over a WebSocket. Every frame
// is a JSON text message {"event": name, "data": payload}.
package wstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"storefront-sync/internal/realtime"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Dialer struct {
	URL    string
	Header http.Header
	Log    *zap.Logger
	WS     *websocket.Dialer
}

func NewDialer(url, token string, log *zap.Logger) *Dialer {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return &Dialer{URL: url, Header: h, Log: log, WS: websocket.DefaultDialer}
}

func (d *Dialer) Dial(ctx context.Context) (realtime.Conn, error) {
	ws, resp, err := d.WS.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &conn{ws: ws, log: d.Log}, nil
}

type conn struct {
	ws  *websocket.Conn
	log *zap.Logger

	wmu       sync.Mutex
	closeOnce sync.Once
}

// Read skips frames that are not valid JSON frames.
func (c *conn) Read(ctx context.Context) (realtime.Event, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	for {
		typ, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return realtime.Event{}, ctx.Err()
			}
			return realtime.Event{}, err
		}
		if typ != websocket.TextMessage {
			continue
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			c.log.Warn("dropping malformed realtime frame", zap.Int("size", len(raw)))
			continue
		}
		return realtime.Event{Name: f.Event, Data: f.Data}, nil
	}
}

func (c *conn) Emit(ctx context.Context, name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	dl, _ := ctx.Deadline()
	_ = c.ws.SetWriteDeadline(dl)
	return c.ws.WriteJSON(Frame{Event: name, Data: raw})
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}
