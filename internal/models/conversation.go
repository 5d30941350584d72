package models

import "time"

// ConversationEntry is a denormalized inbox record, keyed by
// (OwnerID, PartnerID). Two entries exist per conversation, one per
// participant, each carrying the other party's display fields so that an
// inbox UI renders without reading message history.
//
// Entries are written with merge semantics: a send from A to B updates both
// rows, and display fields already present on a row must survive an update
// that does not carry them (the sender's own row never includes partner
// display info).
type ConversationEntry struct {
	OwnerID       string    `json:"-"`
	PartnerID     string    `json:"partnerId"`
	PartnerName   string    `json:"partnerName,omitempty"`
	PartnerPhoto  string    `json:"partnerPhoto,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageID string    `json:"lastMessageId"`
	Timestamp     time.Time `json:"timestamp"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// PartnerOnline is overlaid from the live presence table on reads and is
	// never persisted.
	PartnerOnline bool `json:"partnerOnline"`
}
