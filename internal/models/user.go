package models

import "time"

// User represents a chat participant. Profile management lives outside this
// service; the gateway only reads display fields, mutates presence flags and
// maintains the push-token list.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName,omitempty"`
	PhotoURL    string     `json:"photoURL,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	PushTokens  []string   `json:"-"`
}
