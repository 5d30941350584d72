package ws

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

type fakeConn struct {
	id     string
	userID string
	events []string
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }
func (f *fakeConn) Emit(event string, data any) error {
	f.events = append(f.events, event)
	return nil
}

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func TestJoinAndEmit(t *testing.T) {
	hub := newTestHub()
	c1 := &fakeConn{id: "c1", userID: "u1"}
	c2 := &fakeConn{id: "c2", userID: "u2"}
	c3 := &fakeConn{id: "c3", userID: "u3"}

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)
	hub.Join(c1, "u1_u2")
	hub.Join(c2, "u1_u2")

	hub.Emit("u1_u2", "receiveMessage", nil)

	if len(c1.events) != 1 || len(c2.events) != 1 {
		t.Errorf("room members should each get one event, got %d and %d", len(c1.events), len(c2.events))
	}
	if len(c3.events) != 0 {
		t.Errorf("non-member should get nothing, got %d events", len(c3.events))
	}
}

func TestEmitExcept(t *testing.T) {
	hub := newTestHub()
	c1 := &fakeConn{id: "c1", userID: "u1"}
	c2 := &fakeConn{id: "c2", userID: "u2"}

	hub.Join(c1, GlobalRoom)
	hub.Join(c2, GlobalRoom)

	hub.EmitExcept(GlobalRoom, "userStatus", nil, c1)

	if len(c1.events) != 0 {
		t.Error("excepted connection should not receive the event")
	}
	if len(c2.events) != 1 {
		t.Errorf("expected 1 event for c2, got %d", len(c2.events))
	}
}

func TestUserInRoom(t *testing.T) {
	hub := newTestHub()
	c1 := &fakeConn{id: "c1", userID: "u1"}

	hub.Join(c1, "u1_u2")

	if !hub.UserInRoom("u1_u2", "u1") {
		t.Error("u1 should be in room u1_u2")
	}
	if hub.UserInRoom("u1_u2", "u2") {
		t.Error("u2 should not be in room u1_u2")
	}
	if hub.UserInRoom("u1_u2", "") {
		t.Error("empty user id is never a member")
	}
}

func TestUnregisterSweepsRooms(t *testing.T) {
	hub := newTestHub()
	c1 := &fakeConn{id: "c1", userID: "u1"}

	hub.Register(c1)
	hub.Join(c1, "u1")
	hub.Join(c1, GlobalRoom)
	hub.Join(c1, "u1_u2")

	hub.Unregister(c1)

	for _, room := range []string{"u1", GlobalRoom, "u1_u2"} {
		if hub.UserInRoom(room, "u1") {
			t.Errorf("u1 should have been swept from room %s", room)
		}
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestEncodeEnvelope(t *testing.T) {
	frame, err := Encode("displayTyping", map[string]any{"userId": "u1", "isTyping": true})
	if err != nil {
		t.Fatal(err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatal(err)
	}
	if env.Event != "displayTyping" {
		t.Errorf("expected event displayTyping, got %s", env.Event)
	}

	var data struct {
		UserID   string `json:"userId"`
		IsTyping bool   `json:"isTyping"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.UserID != "u1" || !data.IsTyping {
		t.Errorf("payload did not round-trip: %+v", data)
	}
}
