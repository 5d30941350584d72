package conv

import (
	"errors"
	"testing"
)

func TestNewKeyCanonicalOrder(t *testing.T) {
	k1, err := NewKey("u2", "u1")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := NewKey("u1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("keys for the same pair should be equal: %v vs %v", k1, k2)
	}
	if k1.RoomID() != "u1_u2" {
		t.Errorf("expected room id u1_u2, got %s", k1.RoomID())
	}
}

func TestNewKeyRejectsSelfAndEmpty(t *testing.T) {
	for _, pair := range [][2]string{{"", "u1"}, {"u1", ""}, {"u1", "u1"}} {
		if _, err := NewKey(pair[0], pair[1]); err == nil {
			t.Errorf("NewKey(%q, %q) should fail", pair[0], pair[1])
		}
	}
}

func TestParseRoomID(t *testing.T) {
	key, err := ParseRoomID("alice_bob", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got := key.PartnerOf("bob"); got != "alice" {
		t.Errorf("expected partner alice, got %s", got)
	}
	if got := key.PartnerOf("alice"); got != "bob" {
		t.Errorf("expected partner bob, got %s", got)
	}
}

func TestParseRoomIDMalformed(t *testing.T) {
	cases := []string{"nodelimiter", "_bob", "alice_", "", "_"}
	for _, roomID := range cases {
		if _, err := ParseRoomID(roomID, "alice"); !errors.Is(err, ErrMalformedRoomID) {
			t.Errorf("ParseRoomID(%q) expected ErrMalformedRoomID, got %v", roomID, err)
		}
	}
}

func TestParseRoomIDNotParticipant(t *testing.T) {
	if _, err := ParseRoomID("alice_bob", "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}
