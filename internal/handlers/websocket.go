package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/consult-signaling/config"
	"github.com/mossy-p/consult-signaling/internal/metrics"
	"github.com/mossy-p/consult-signaling/internal/middleware"
	"github.com/mossy-p/consult-signaling/internal/models"
	"github.com/mossy-p/consult-signaling/internal/ratelimit"
	"github.com/mossy-p/consult-signaling/internal/relay"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrSessionClosed  = errors.New("session closed")
)

// Client is one participant's websocket session.
type Client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues msg for the write pump. It never blocks: a full buffer means
// the peer is not keeping up and the message is dropped.
func (c *Client) Send(msg models.SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which then sends a close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SignalingHandler upgrades HTTP requests into signaling sessions.
type SignalingHandler struct {
	relay    *relay.Relay
	session  config.SessionConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    ratelimit.Clock
	upgrader websocket.Upgrader
}

func NewSignalingHandler(r *relay.Relay, session config.SessionConfig, m *metrics.Metrics, logger *slog.Logger) *SignalingHandler {
	return &SignalingHandler{
		relay:   r,
		session: session,
		metrics: m,
		logger:  logger,
		clock:   ratelimit.RealClock{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is handled by middleware
				return true
			},
		},
	}
}

// HandleSignaling serves /ws/signal and /ws/signal/:roomId. With a room in
// the path the participant joins it right after the connected message.
func (h *SignalingHandler) HandleSignaling(c *gin.Context) {
	roomID := c.Param("roomId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	// Identifiers are never reused, so a reconnecting browser gets a new one.
	client := newClient(uuid.New().String(), conn, h.session.SendBufferSize)
	logger := h.logger.With("participant", client.id)
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		logger = logger.With("user_id", userID)
	}

	if err := h.relay.Connect(client); err != nil {
		logger.Warn("relay unavailable, closing connection", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	logger.Info("session opened", "remote_addr", conn.RemoteAddr().String())

	if roomID != "" {
		_ = h.relay.Dispatch(client.id, models.SignalMessage{Type: models.SignalTypeJoinRoom, RoomID: roomID})
	}

	limiter := ratelimit.NewTokenBucket(h.clock, h.session.MessageBurst, h.session.MessagesPerSecond)

	go client.writePump(logger)
	go client.readPump(h.relay, limiter, h.session.MaxMessageSize, h.metrics, logger)
}

func (c *Client) readPump(r *relay.Relay, limiter *ratelimit.TokenBucket, maxMessageSize int64, m *metrics.Metrics, logger *slog.Logger) {
	defer func() {
		// The relay closes the send channel once the participant has left every room.
		if err := r.Disconnect(c.id); err != nil {
			c.Close()
		}
		c.conn.Close()
		logger.Info("session closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket error", "error", err)
			}
			return
		}

		var msg models.SignalMessage
		err = json.Unmarshal(message, &msg)

		// Room control always passes so a flood of candidates cannot strand a leave.
		if (err != nil || !isRoomControl(msg.Type)) && !limiter.Allow() {
			m.Inc(metrics.RateLimited)
			logger.Debug("inbound message rate limited", "type", msg.Type)
			continue
		}
		if err != nil {
			m.Inc(metrics.MalformedEnvelopes)
			logger.Warn("failed to parse message", "error", err)
			continue
		}

		if err := r.Dispatch(c.id, msg); err != nil {
			logger.Warn("relay unavailable", "error", err)
			return
		}
	}
}

func isRoomControl(t models.SignalType) bool {
	switch t {
	case models.SignalTypeJoinRoom, models.SignalTypeLeaveRoom, models.SignalTypeReadyToConnect:
		return true
	}
	return false
}

func (c *Client) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
