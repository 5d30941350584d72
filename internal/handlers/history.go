package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FathanAS/fdvp-backend/internal/conv"
	"github.com/FathanAS/fdvp-backend/internal/models"
)

// HistoryResponse represents a room history read.
type HistoryResponse struct {
	RoomID   string           `json:"roomId"`
	Messages []models.Message `json:"messages"`
}

// GetHistory returns a room's messages in send order, with the caller's
// soft-deleted messages filtered out. The caller must be a participant of
// the room.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	if _, err := conv.ParseRoomID(roomID, userID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room for this user")
		return
	}

	msgs, err := h.roomMessages(r, roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		RoomID:   roomID,
		Messages: models.FilterVisible(msgs, userID),
	})
}

// roomMessages reads from the hot cache when it holds the room, otherwise
// from the store, priming the cache on the way out.
func (h *Handler) roomMessages(r *http.Request, roomID string) ([]models.Message, error) {
	ctx := r.Context()
	if h.redis != nil {
		if msgs, hit, err := h.redis.RoomMessages(ctx, roomID); err == nil && hit {
			return msgs, nil
		}
	}
	msgs, err := h.db.MessagesByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if h.redis != nil && len(msgs) > 0 {
		// Best effort; a failed prime just means the next read hits the store.
		_ = h.redis.PrimeRoom(ctx, roomID, msgs)
	}
	return msgs, nil
}

// ClearHistory soft-deletes every message in the room for the calling user
// only. The other participant's view is untouched.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}
	if _, err := conv.ParseRoomID(roomID, userID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room for this user")
		return
	}

	if err := h.db.SoftDeleteRoom(r.Context(), roomID, userID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	h.invalidateRoom(r, roomID)

	h.recordActivity(r, models.ActivityEntry{
		Action:     "clear_history",
		ActorID:    userID,
		TargetID:   roomID,
		TargetType: "room",
	})
	h.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// DeleteMessagesRequest represents the bulk soft-delete request body.
type DeleteMessagesRequest struct {
	RoomID     string   `json:"roomId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

// DeleteMessages soft-deletes a batch of messages for the calling user.
func (h *Handler) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req DeleteMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || len(req.MessageIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "userId and messageIds are required")
		return
	}

	if err := h.db.SoftDeleteMessages(r.Context(), req.MessageIDs, req.UserID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete messages")
		return
	}
	if req.RoomID != "" {
		h.invalidateRoom(r, req.RoomID)
	}
	h.JSON(w, http.StatusOK, map[string]any{"deleted": len(req.MessageIDs)})
}

// EditMessageRequest represents the edit request body.
type EditMessageRequest struct {
	UserID  string `json:"userId"`
	NewText string `json:"newText"`
}

// EditMessage rewrites a message's text. Only the original sender may edit.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.NewText == "" {
		h.Error(w, http.StatusBadRequest, "userId and newText are required")
		return
	}

	msg, err := h.db.GetMessage(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}
	if msg.SenderID != req.UserID {
		h.Error(w, http.StatusForbidden, "only the sender can edit a message")
		return
	}

	editedAt := time.Now().UTC()
	if err := h.db.EditMessage(r.Context(), id, req.NewText, editedAt); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to edit message")
		return
	}
	h.invalidateRoom(r, msg.RoomID)

	msg.Text = req.NewText
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	h.JSON(w, http.StatusOK, msg)
}

func (h *Handler) invalidateRoom(r *http.Request, roomID string) {
	if h.redis == nil {
		return
	}
	_ = h.redis.InvalidateRoom(r.Context(), roomID)
}

func (h *Handler) recordActivity(r *http.Request, e models.ActivityEntry) {
	if h.activity == nil {
		return
	}
	h.activity.Record(r.Context(), e)
}
