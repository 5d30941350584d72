// Package presence tracks which users have open connections.
//
// A user may hold several connections at once (multiple tabs or devices); the
// tracker collapses them into a single online/offline signal. It is pure
// bookkeeping: persisting or broadcasting a transition is the caller's
// decision, driven by the booleans Connect and Disconnect return.
package presence

import "sync"

// Tracker maps a user ID to the set of its open connection IDs. A user is
// present in the map iff it has at least one open connection; the entry is
// removed the moment the set empties.
//
// All mutations happen synchronously under one mutex and never span I/O, so
// concurrent connects and disconnects for the same user cannot produce two
// "first connection" transitions for one online period.
type Tracker struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]map[string]struct{})}
}

// Connect records an open connection and reports whether it is the user's
// first active one. Connections without a resolvable user ID are not tracked.
func (t *Tracker) Connect(userID, connID string) (first bool) {
	if userID == "" || connID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Disconnect removes a connection and reports whether the user now has none
// left. Removing an unknown connection is a no-op.
func (t *Tracker) Disconnect(userID, connID string) (last bool) {
	if userID == "" || connID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(t.conns, userID)
		return true
	}
	return false
}

// Online reports whether the user has at least one open connection.
func (t *Tracker) Online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[userID]) > 0
}

// Connections returns the number of open connections for a user.
func (t *Tracker) Connections(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[userID])
}

// OnlineCount returns the number of distinct online users.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
