package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FathanAS/fdvp-backend/internal/models"
)

// UserStatusResponse represents a user's presence as seen by the HTTP API.
type UserStatusResponse struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// GetUserStatus reports a user's live presence. The in-memory tracker is
// authoritative for who is online; last-seen comes from the store.
func (h *Handler) GetUserStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	resp := UserStatusResponse{UserID: id, IsOnline: h.presence.Online(id)}
	if !resp.IsOnline {
		u, err := h.db.GetUser(r.Context(), id)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if u != nil {
			resp.LastSeen = u.LastSeen
		}
	}
	h.JSON(w, http.StatusOK, resp)
}

// UpsertUserRequest represents the profile upsert body.
type UpsertUserRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// UpsertUser creates or refreshes a user profile. Clients call this on
// login so sender lookups resolve fresh display data.
func (h *Handler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DisplayName == "" {
		h.Error(w, http.StatusBadRequest, "displayName is required")
		return
	}

	u := &models.User{ID: id, DisplayName: req.DisplayName, PhotoURL: req.PhotoURL}
	if err := h.db.UpsertUser(r.Context(), u); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save user")
		return
	}
	h.JSON(w, http.StatusOK, u)
}

// PushTokenRequest represents a push token registration body.
type PushTokenRequest struct {
	Token string `json:"token"`
}

// AddPushToken registers a device push token for the user. Repeated
// registrations of the same token are a no-op.
func (h *Handler) AddPushToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" {
		h.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.db.AddPushToken(r.Context(), id, req.Token); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save token")
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// RemovePushTokensRequest represents a push token removal body.
type RemovePushTokensRequest struct {
	Tokens []string `json:"tokens"`
}

// RemovePushTokens deletes device push tokens, typically on logout.
func (h *Handler) RemovePushTokens(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RemovePushTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Tokens) == 0 {
		h.Error(w, http.StatusBadRequest, "tokens are required")
		return
	}

	if err := h.db.RemovePushTokens(r.Context(), id, req.Tokens); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to remove tokens")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
