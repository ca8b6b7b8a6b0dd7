package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrOffline        = errors.New("realtime: not connected")
	ErrClosed         = errors.New("realtime: channel closed")
	ErrAlreadyStarted = errors.New("realtime: channel already started")
	ErrConnClosed     = errors.New("realtime: connection closed")
)

// Event is one named push message.
type Event struct {
	Name string
	Data json.RawMessage
}

// Conn is a single established transport connection. Read blocks until an
// event arrives, the connection drops or ctx is done. Emit may be called
// concurrently with Read.
type Conn interface {
	Read(ctx context.Context) (Event, error)
	Emit(ctx context.Context, name string, data any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// JoinEvent is the event announcing interest in a room, e.g. "vendor:join".
func JoinEvent(kind string) string { return kind + ":join" }
