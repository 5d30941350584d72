package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FathanAS/fdvp-backend/internal/models"
)

// ConversationsResponse represents a user's conversation inbox.
type ConversationsResponse struct {
	UserID        string                     `json:"userId"`
	Conversations []models.ConversationEntry `json:"conversations"`
}

// GetConversations returns the caller's conversation inbox, most recent
// first. Live presence is overlaid on each partner so the list reflects who
// is online right now, not who was online at the last write.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	entries, err := h.db.ConversationsFor(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if entries == nil {
		entries = []models.ConversationEntry{}
	}
	for i := range entries {
		entries[i].PartnerOnline = h.presence.Online(entries[i].PartnerID)
	}

	h.JSON(w, http.StatusOK, ConversationsResponse{
		UserID:        userID,
		Conversations: entries,
	})
}
