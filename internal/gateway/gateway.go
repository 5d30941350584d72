// Package gateway implements the chat semantics behind the websocket event
// surface: presence transitions, room membership, the message send pipeline
// and the read/typing/edit/delete relays.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/FathanAS/fdvp-backend/internal/metrics"
	"github.com/FathanAS/fdvp-backend/internal/models"
	"github.com/FathanAS/fdvp-backend/internal/presence"
	"github.com/FathanAS/fdvp-backend/internal/push"
	"github.com/FathanAS/fdvp-backend/internal/ws"
)

// Inbound event names.
const (
	EventJoinRoom         = "joinRoom"
	EventSendMessage      = "sendMessage"
	EventReadMessage      = "readMessage"
	EventTyping           = "typing"
	EventBroadcastMessage = "broadcastMessage"
	EventEditMessage      = "editMessage"
	EventDeleteMessages   = "deleteMessages"
)

// Outbound event names.
const (
	EventLoadPreviousMessages = "loadPreviousMessages"
	EventReceiveMessage       = "receiveMessage"
	EventReceiveNotification  = "receiveNotification"
	EventMessagesReadUpdate   = "messagesReadUpdate"
	EventDisplayTyping        = "displayTyping"
	EventMessageEdited        = "messageEdited"
	EventMessageDeleted       = "messageDeleted"
	EventUserStatus           = "userStatus"
)

// SystemSenderID is the fixed sender identity on operator broadcasts.
const SystemSenderID = "system-broadcast"

// Store is the slice of the durable store the gateway touches.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error
	PutMessage(ctx context.Context, m *models.Message) error
	MessagesByRoom(ctx context.Context, roomID string) ([]models.Message, error)
	MarkMessagesRead(ctx context.Context, ids []string) error
	UpsertConversations(ctx context.Context, entries ...models.ConversationEntry) error
	RemovePushTokens(ctx context.Context, userID string, tokens []string) error
}

// Broker is room membership and fan-out, implemented by *ws.Hub.
type Broker interface {
	Join(c ws.Conn, room string)
	Emit(room, event string, data any)
	EmitExcept(room, event string, data any, except ws.Conn)
	UserInRoom(room, userID string) bool
}

// Cache is the optional hot history cache, implemented by *store.RedisStore.
// A nil Cache degrades every history read to the durable store.
type Cache interface {
	RoomMessages(ctx context.Context, roomID string) ([]models.Message, bool, error)
	PrimeRoom(ctx context.Context, roomID string, msgs []models.Message) error
	AppendMessage(ctx context.Context, msg *models.Message) error
	InvalidateRoom(ctx context.Context, roomID string) error
}

// ActivityRecorder is the best-effort audit trail.
type ActivityRecorder interface {
	Record(ctx context.Context, e models.ActivityEntry)
}

// Config assembles a Gateway's collaborators. Broker, Presence, Store and
// Logger are required; the rest may be nil/zero.
type Config struct {
	Broker   Broker
	Presence *presence.Tracker
	Store    Store
	Cache    Cache
	Push     push.Dispatcher
	Activity ActivityRecorder
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Gateway handles connection lifecycle and chat events. One instance serves
// every connection; per-connection events arrive sequentially on the
// connection's reader goroutine, and shared state (presence table, room
// membership) serializes internally.
type Gateway struct {
	broker   Broker
	presence *presence.Tracker
	store    Store
	cache    Cache
	push     push.Dispatcher
	activity ActivityRecorder
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		broker:   cfg.Broker,
		presence: cfg.Presence,
		store:    cfg.Store,
		cache:    cfg.Cache,
		push:     cfg.Push,
		activity: cfg.Activity,
		log:      cfg.Logger,
		now:      now,
	}
}

type userStatusPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// HandleConnect registers presence and room membership for a new connection.
// A handshake without a userId is not tracked and produces no transition.
func (g *Gateway) HandleConnect(c ws.Conn) {
	userID := c.UserID()
	if userID == "" {
		g.log.Debug().Str("conn", c.ID()).Msg("connection without userId, not tracked")
		return
	}

	// Private room for direct notifications, global room for system fan-out.
	g.broker.Join(c, userID)
	g.broker.Join(c, ws.GlobalRoom)

	first := g.presence.Connect(userID, c.ID())
	metrics.OnlineUsers.Set(float64(g.presence.OnlineCount()))
	if !first {
		return
	}

	metrics.PresenceTransitions.WithLabelValues("online").Inc()
	g.log.Info().Str("userId", userID).Msg("user came online")

	if err := g.store.SetPresence(context.Background(), userID, true, nil); err != nil {
		g.log.Error().Err(err).Str("userId", userID).Msg("persisting online status failed")
	}
	g.broker.EmitExcept(ws.GlobalRoom, EventUserStatus,
		userStatusPayload{UserID: userID, IsOnline: true}, c)
}

// HandleDisconnect deregisters a connection and, when it was the user's last
// one, persists and broadcasts the offline transition.
func (g *Gateway) HandleDisconnect(c ws.Conn) {
	userID := c.UserID()
	if userID == "" {
		return
	}

	last := g.presence.Disconnect(userID, c.ID())
	metrics.OnlineUsers.Set(float64(g.presence.OnlineCount()))
	if !last {
		return
	}

	metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	lastSeen := g.now().UTC()
	g.log.Info().Str("userId", userID).Time("lastSeen", lastSeen).Msg("user went offline")

	if err := g.store.SetPresence(context.Background(), userID, false, &lastSeen); err != nil {
		g.log.Error().Err(err).Str("userId", userID).Msg("persisting offline status failed")
	}
	g.broker.EmitExcept(ws.GlobalRoom, EventUserStatus,
		userStatusPayload{UserID: userID, IsOnline: false, LastSeen: &lastSeen}, c)
}

// HandleEvent routes one inbound event to its handler. Unknown events and
// unparsable payloads are dropped; a bad frame never tears down the
// connection.
func (g *Gateway) HandleEvent(ctx context.Context, c ws.Conn, event string, data json.RawMessage) {
	var err error
	switch event {
	case EventJoinRoom:
		var p joinRoomPayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleJoinRoom(ctx, c, p)
		}
	case EventSendMessage:
		var p SendMessagePayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleSendMessage(ctx, p)
		}
	case EventReadMessage:
		var p readMessagePayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleReadMessage(ctx, p)
		}
	case EventTyping:
		var p typingPayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleTyping(p)
		}
	case EventBroadcastMessage:
		var p broadcastPayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleBroadcast(ctx, p)
		}
	case EventEditMessage:
		var p editMessagePayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleEditMessage(ctx, p)
		}
	case EventDeleteMessages:
		var p deleteMessagesPayload
		if err = json.Unmarshal(data, &p); err == nil {
			g.handleDeleteMessages(ctx, p)
		}
	default:
		g.log.Debug().Str("event", event).Str("conn", c.ID()).Msg("unknown event")
	}
	if err != nil {
		g.log.Warn().Err(err).Str("event", event).Str("conn", c.ID()).Msg("unparsable payload")
	}
}
