package gateway

import (
	"context"
	"time"

	"github.com/FathanAS/fdvp-backend/internal/metrics"
	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/ws"
)

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type readMessagePayload struct {
	RoomID     string   `json:"roomId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

type typingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type broadcastPayload struct {
	Message    string `json:"message"`
	SenderName string `json:"senderName"`
}

type editMessagePayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

type deleteMessagesPayload struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

// handleJoinRoom subscribes the connection to a room and replays its history
// to the caller only. The hot cache is tried first; a miss loads from the
// store and primes the cache for the next joiner.
func (g *Gateway) handleJoinRoom(ctx context.Context, c ws.Conn, p joinRoomPayload) {
	if p.RoomID == "" {
		return
	}
	g.broker.Join(c, p.RoomID)

	msgs, err := g.roomHistory(ctx, p.RoomID)
	if err != nil {
		g.log.Error().Err(err).Str("roomId", p.RoomID).Msg("loading room history failed")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	if err := c.Emit(EventLoadPreviousMessages, msgs); err != nil {
		g.log.Warn().Err(err).Str("conn", c.ID()).Msg("history replay dropped")
	}
}

func (g *Gateway) roomHistory(ctx context.Context, roomID string) ([]models.Message, error) {
	if g.cache != nil {
		msgs, hit, err := g.cache.RoomMessages(ctx, roomID)
		if err != nil {
			g.log.Warn().Err(err).Str("roomId", roomID).Msg("cache read failed")
		} else if hit {
			return msgs, nil
		}
	}
	msgs, err := g.store.MessagesByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if g.cache != nil && len(msgs) > 0 {
		if err := g.cache.PrimeRoom(ctx, roomID, msgs); err != nil {
			g.log.Warn().Err(err).Str("roomId", roomID).Msg("cache prime failed")
		}
	}
	return msgs, nil
}

// handleReadMessage marks the batch read and relays the update to the room.
// A store failure skips the relay; the reader's next visit retries the same
// idempotent mark.
func (g *Gateway) handleReadMessage(ctx context.Context, p readMessagePayload) {
	if len(p.MessageIDs) == 0 || p.RoomID == "" {
		return
	}
	if err := g.store.MarkMessagesRead(ctx, p.MessageIDs); err != nil {
		g.log.Error().Err(err).Str("roomId", p.RoomID).Msg("marking messages read failed")
		return
	}
	g.invalidateRoom(ctx, p.RoomID)
	g.broker.Emit(p.RoomID, EventMessagesReadUpdate, struct {
		MessageIDs []string `json:"messageIds"`
	}{p.MessageIDs})
	metrics.ReadReceipts.Add(float64(len(p.MessageIDs)))
}

// handleTyping relays a typing indicator to the room. Nothing is persisted.
func (g *Gateway) handleTyping(p typingPayload) {
	if p.RoomID == "" || p.UserID == "" {
		return
	}
	g.broker.Emit(p.RoomID, EventDisplayTyping, struct {
		UserID   string `json:"userId"`
		IsTyping bool   `json:"isTyping"`
	}{p.UserID, p.IsTyping})
	metrics.TypingEvents.Inc()
}

// handleEditMessage relays an already-persisted edit to the room. The HTTP
// edit endpoint owns the durable mutation; this only fans out the result.
func (g *Gateway) handleEditMessage(ctx context.Context, p editMessagePayload) {
	if p.RoomID == "" || p.MessageID == "" {
		return
	}
	g.invalidateRoom(ctx, p.RoomID)
	g.broker.Emit(p.RoomID, EventMessageEdited, struct {
		MessageID string `json:"messageId"`
		NewText   string `json:"newText"`
	}{p.MessageID, p.NewText})
}

// handleDeleteMessages relays an already-applied deletion to the room.
func (g *Gateway) handleDeleteMessages(ctx context.Context, p deleteMessagesPayload) {
	if p.RoomID == "" || len(p.MessageIDs) == 0 {
		return
	}
	g.invalidateRoom(ctx, p.RoomID)
	g.broker.Emit(p.RoomID, EventMessageDeleted, struct {
		MessageIDs []string `json:"messageIds"`
	}{p.MessageIDs})
}

// handleBroadcast pushes an operator announcement to everyone online under
// the fixed system sender identity.
func (g *Gateway) handleBroadcast(ctx context.Context, p broadcastPayload) {
	if p.Message == "" {
		return
	}
	senderName := p.SenderName
	if senderName == "" {
		senderName = "Announcement"
	}
	now := g.now().UTC()
	g.broker.Emit(ws.GlobalRoom, EventReceiveNotification, notificationPayload{
		SenderID:   SystemSenderID,
		SenderName: senderName,
		RoomID:     ws.GlobalRoom,
		Text:       p.Message,
		CreatedAt:  now.Format(time.RFC3339),
	})
	metrics.NotificationsEmitted.WithLabelValues("room").Inc()

	if g.activity != nil {
		g.activity.Record(ctx, models.ActivityEntry{
			Action:      "broadcast",
			Description: p.Message,
			ActorID:     SystemSenderID,
			ActorName:   senderName,
			TargetType:  "room",
			TargetID:    ws.GlobalRoom,
		})
	}
}

func (g *Gateway) invalidateRoom(ctx context.Context, roomID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidateRoom(ctx, roomID); err != nil {
		g.log.Warn().Err(err).Str("roomId", roomID).Msg("cache invalidate failed")
	}
}
