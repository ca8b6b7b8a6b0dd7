package realtime

import "time"

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusError      Status = "error"
)

// ConnectionState is what the connectivity banner renders. Err is the cause
// of the last offline/error transition.
type ConnectionState struct {
	Status Status    `json:"status"`
	Since  time.Time `json:"since"`
	Err    error     `json:"-"`
}

func (s ConnectionState) Online() bool { return s.Status == StatusOnline }

// Room is a server-side broadcast group joined by kind and id.
type Room struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (r Room) String() string { return r.Kind + ":" + r.ID }
