package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/FathanAS/fdvp-backend/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway sits behind its own origin checks at the edge; the
	// handshake itself accepts any origin, like the rest of the API surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub     *Hub
	handler EventHandler
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	id      string
	userID  string
	log     zerolog.Logger
}

// ID returns the ephemeral connection ID.
func (c *Client) ID() string { return c.id }

// UserID returns the logical identity from the handshake, or "" if the
// handshake carried none.
func (c *Client) UserID() string { return c.userID }

// Emit queues an event frame for delivery on this connection. Frames for a
// consumer whose buffer is full are dropped; a live client drains far faster
// than the buffer fills.
func (c *Client) Emit(event string, data any) error {
	frame, err := Encode(event, data)
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
	default:
		c.log.Warn().Str("event", event).Str("conn", c.id).Msg("send buffer full, frame dropped")
	}
	return nil
}

// readPump pumps frames from the websocket to the event handler. It owns
// connection teardown: when the read side ends, the connection unregisters,
// the disconnect handler runs, and the write pump is told to stop.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.handler.HandleDisconnect(c)
		close(c.done)
		c.conn.Close()
		metrics.WSConnections.Dec()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Str("conn", c.id).Msg("websocket read error")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
			c.log.Debug().Str("conn", c.id).Msg("dropping unparsable frame")
			continue
		}
		c.handler.HandleEvent(context.Background(), c, env.Event, env.Data)
	}
}

// writePump pumps queued frames to the websocket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and starts its
// pumps. The logical user identity rides on the handshake query string.
func ServeWS(hub *Hub, handler EventHandler, logger zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:     hub,
		handler: handler,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		id:      uuid.NewString(),
		userID:  r.URL.Query().Get("userId"),
		log:     logger,
	}

	hub.Register(client)
	metrics.WSConnections.Inc()
	handler.HandleConnect(client)

	go client.writePump()
	go client.readPump()
}
