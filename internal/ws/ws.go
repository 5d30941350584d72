// Package ws carries the real-time transport: a websocket hub with room
// membership and per-connection read/write pumps. Frames are JSON envelopes
// with a named event and a structured payload; the chat semantics behind each
// event live in the gateway package.
package ws

import (
	"context"
	"encoding/json"
)

// GlobalRoom is the broadcast group every tracked connection belongs to.
const GlobalRoom = "global"

// Envelope is the wire frame: a named event with a JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for an event and its payload.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Conn is one open channel instance. The connection ID is ephemeral and
// unique per websocket; the user ID comes from the handshake and is empty
// when the handshake carried none.
type Conn interface {
	ID() string
	UserID() string
	Emit(event string, data any) error
}

// EventHandler receives connection lifecycle and inbound events. Handlers run
// on the connection's reader goroutine, so events from one connection are
// processed sequentially.
type EventHandler interface {
	HandleConnect(c Conn)
	HandleDisconnect(c Conn)
	HandleEvent(ctx context.Context, c Conn, event string, data json.RawMessage)
}
