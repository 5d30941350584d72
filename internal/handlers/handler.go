// Package handlers implements the HTTP surface: history reads, conversation
// inboxes, user status, push token registration and the operational
// endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/FathanAS/fdvp-backend/internal/activity"
	"github.com/FathanAS/fdvp-backend/internal/presence"
	"github.com/FathanAS/fdvp-backend/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore
	presence *presence.Tracker
	activity *activity.Recorder
}

// NewHandler creates a new Handler. redis and activity may be nil.
func NewHandler(db store.DataStore, redis *store.RedisStore, tracker *presence.Tracker, rec *activity.Recorder) *Handler {
	return &Handler{db: db, redis: redis, presence: tracker, activity: rec}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
