package models

import "time"

// ActivityEntry is an audit-trail record for operator and system actions.
// IDs are ULIDs so entries sort lexicographically by creation time.
type ActivityEntry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	ActorID     string    `json:"actorId,omitempty"`
	ActorName   string    `json:"actorName,omitempty"`
	TargetID    string    `json:"targetId,omitempty"`
	TargetType  string    `json:"targetType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
