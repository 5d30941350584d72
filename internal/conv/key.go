// Package conv models the identity of a two-party conversation.
//
// The wire protocol encodes a conversation room as "userA_userB". Rather than
// splitting that string ad hoc wherever a recipient is needed, a Key is the
// canonical (sorted) participant pair, constructed through validating
// constructors.
package conv

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the two participant IDs in a room ID.
const Delimiter = "_"

var (
	// ErrMalformedRoomID reports a room ID that does not encode exactly two
	// non-empty participants.
	ErrMalformedRoomID = errors.New("conv: malformed room id")

	// ErrNotParticipant reports a sender that is not part of the conversation
	// the room ID encodes.
	ErrNotParticipant = errors.New("conv: sender is not a participant")
)

// Key identifies a two-party conversation. A and B are ordered so that the
// same pair always produces the same Key regardless of which side derived it.
type Key struct {
	A, B string
}

// NewKey builds the canonical key for two participants.
func NewKey(u1, u2 string) (Key, error) {
	if u1 == "" || u2 == "" || u1 == u2 {
		return Key{}, ErrMalformedRoomID
	}
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return Key{A: u1, B: u2}, nil
}

// ParseRoomID parses a "userA_userB" room ID and verifies that senderID is
// one of the participants. User IDs themselves never contain the delimiter.
func ParseRoomID(roomID, senderID string) (Key, error) {
	a, b, ok := strings.Cut(roomID, Delimiter)
	if !ok || a == "" || b == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedRoomID, roomID)
	}
	key, err := NewKey(a, b)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedRoomID, roomID)
	}
	if senderID != a && senderID != b {
		return Key{}, fmt.Errorf("%w: %q in room %q", ErrNotParticipant, senderID, roomID)
	}
	return key, nil
}

// PartnerOf returns the participant that is not userID.
func (k Key) PartnerOf(userID string) string {
	if userID == k.A {
		return k.B
	}
	return k.A
}

// RoomID renders the canonical room ID for this conversation.
func (k Key) RoomID() string {
	return k.A + Delimiter + k.B
}
