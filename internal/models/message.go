package models

import "time"

// Message represents a direct message. The ID is supplied by the client
// (a UUID generated at send time) so that retries of the same send are
// idempotent upserts rather than duplicates.
//
// Messages are never physically deleted: DeletedBy is a monotonically growing
// set of viewer IDs for whom the message is hidden ("delete for me").
type Message struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId"`
	SenderID    string     `json:"senderId"`
	SenderName  string     `json:"senderName"`
	SenderPhoto string     `json:"senderPhoto,omitempty"`
	Text        string     `json:"text"`
	IsRead      bool       `json:"isRead"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReplyTo     string     `json:"replyTo,omitempty"`
	ReplyToText string     `json:"replyToText,omitempty"`
	DeletedBy   []string   `json:"deletedBy,omitempty"`
	IsEdited    bool       `json:"isEdited,omitempty"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
}

// VisibleTo reports whether the message should be shown to the given viewer.
// Filtering is a read-time projection, not a storage concern.
func (m *Message) VisibleTo(viewerID string) bool {
	for _, id := range m.DeletedBy {
		if id == viewerID {
			return false
		}
	}
	return true
}

// FilterVisible returns the subset of messages visible to the given viewer,
// preserving order.
func FilterVisible(msgs []Message, viewerID string) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.VisibleTo(viewerID) {
			out = append(out, m)
		}
	}
	return out
}
