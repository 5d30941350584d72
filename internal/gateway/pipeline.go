package gateway

import (
	"context"

	"github.com/FathanAS/fdvp-backend/internal/conv"
	"github.com/FathanAS/fdvp-backend/internal/metrics"
	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/push"
)

// SendMessagePayload is the client's sendMessage frame. The client supplies
// the message id, so retried sends overwrite rather than duplicate.
type SendMessagePayload struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	SenderPhoto string `json:"senderPhoto"`
	Text        string `json:"text"`
	ReplyTo     string `json:"replyTo,omitempty"`
	ReplyToText string `json:"replyToText,omitempty"`
}

type notificationPayload struct {
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	SenderPhoto string `json:"senderPhoto"`
	RoomID      string `json:"roomId"`
	Text        string `json:"text"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// handleSendMessage runs the message pipeline: validate the room id against
// the sender, resolve the sender's photo, persist, upsert both conversation
// inbox rows, then broadcast to the room and notify the recipient when they
// are not looking at the room. Persist and index failures abort before any
// broadcast so clients never see a message the store does not hold.
func (g *Gateway) handleSendMessage(ctx context.Context, p SendMessagePayload) {
	if p.ID == "" || p.SenderID == "" {
		metrics.MessagesFailed.WithLabelValues("validate").Inc()
		g.log.Warn().Str("roomId", p.RoomID).Msg("sendMessage missing id or senderId")
		return
	}
	key, err := conv.ParseRoomID(p.RoomID, p.SenderID)
	if err != nil {
		metrics.MessagesFailed.WithLabelValues("validate").Inc()
		g.log.Warn().Err(err).Str("roomId", p.RoomID).Str("senderId", p.SenderID).
			Msg("sendMessage rejected")
		return
	}
	recipientID := key.PartnerOf(p.SenderID)

	// The stored profile photo wins over whatever the client sent; a lookup
	// failure falls back to the client's value.
	senderPhoto := p.SenderPhoto
	if u, err := g.store.GetUser(ctx, p.SenderID); err != nil {
		g.log.Warn().Err(err).Str("userId", p.SenderID).Msg("sender photo lookup failed")
	} else if u != nil && u.PhotoURL != "" {
		senderPhoto = u.PhotoURL
	}

	msg := models.Message{
		ID:          p.ID,
		RoomID:      p.RoomID,
		SenderID:    p.SenderID,
		SenderName:  p.SenderName,
		SenderPhoto: senderPhoto,
		Text:        p.Text,
		CreatedAt:   g.now().UTC(),
		ReplyTo:     p.ReplyTo,
		ReplyToText: p.ReplyToText,
	}
	if err := g.store.PutMessage(ctx, &msg); err != nil {
		metrics.MessagesFailed.WithLabelValues("persist").Inc()
		g.log.Error().Err(err).Str("messageId", msg.ID).Msg("persisting message failed")
		return
	}

	if err := g.store.UpsertConversations(ctx,
		models.ConversationEntry{
			OwnerID:       p.SenderID,
			PartnerID:     recipientID,
			LastMessage:   msg.Text,
			LastMessageID: msg.ID,
			Timestamp:     msg.CreatedAt,
			UpdatedAt:     msg.CreatedAt,
		},
		models.ConversationEntry{
			OwnerID:       recipientID,
			PartnerID:     p.SenderID,
			PartnerName:   p.SenderName,
			PartnerPhoto:  senderPhoto,
			LastMessage:   msg.Text,
			LastMessageID: msg.ID,
			Timestamp:     msg.CreatedAt,
			UpdatedAt:     msg.CreatedAt,
		},
	); err != nil {
		metrics.MessagesFailed.WithLabelValues("index").Inc()
		g.log.Error().Err(err).Str("messageId", msg.ID).Msg("conversation upsert failed")
		return
	}

	if g.cache != nil {
		if err := g.cache.AppendMessage(ctx, &msg); err != nil {
			g.log.Warn().Err(err).Str("roomId", msg.RoomID).Msg("cache append failed")
		}
	}

	g.broker.Emit(p.RoomID, EventReceiveMessage, msg)
	metrics.MessagesSent.Inc()

	// Suppression: a recipient with the conversation open already received
	// the message itself, so no notification.
	if g.broker.UserInRoom(p.RoomID, recipientID) {
		return
	}

	notif := notificationPayload{
		SenderID:    p.SenderID,
		SenderName:  p.SenderName,
		SenderPhoto: senderPhoto,
		RoomID:      p.RoomID,
		Text:        msg.Text,
	}
	g.broker.Emit(recipientID, EventReceiveNotification, notif)
	metrics.NotificationsEmitted.WithLabelValues("room").Inc()

	g.dispatchPush(ctx, recipientID, notif)
}

// dispatchPush sends the notification to the recipient's registered push
// tokens and prunes tokens the gateway reports dead. Every failure here is
// logging-only; push delivery never affects the message pipeline.
func (g *Gateway) dispatchPush(ctx context.Context, recipientID string, notif notificationPayload) {
	if g.push == nil {
		return
	}
	u, err := g.store.GetUser(ctx, recipientID)
	if err != nil {
		g.log.Warn().Err(err).Str("userId", recipientID).Msg("push token lookup failed")
		return
	}
	if u == nil || len(u.PushTokens) == 0 {
		return
	}

	results, err := g.push.Send(ctx, u.PushTokens, push.Notification{
		Title:    notif.SenderName,
		Body:     notif.Text,
		ImageURL: notif.SenderPhoto,
		RoomID:   notif.RoomID,
		SenderID: notif.SenderID,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("userId", recipientID).Msg("push dispatch failed")
		return
	}
	metrics.NotificationsEmitted.WithLabelValues("push").Inc()

	if failed := push.FailedTokens(results); len(failed) > 0 {
		if err := g.store.RemovePushTokens(ctx, recipientID, failed); err != nil {
			g.log.Warn().Err(err).Str("userId", recipientID).Msg("pruning dead push tokens failed")
		} else {
			g.log.Info().Str("userId", recipientID).Int("count", len(failed)).
				Msg("pruned dead push tokens")
		}
	}
}
