package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dm-core/contract"
	"dm-core/domain/event"
	"dm-core/runtime"
	"dm-core/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	maxFrameSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement belongs to the reverse proxy in this deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// socketHub counts live sockets per user so presence only flips on the
// first connect and the last disconnect, not on every extra tab.
type socketHub struct {
	log        *slog.Logger
	service    services.IMessengerService
	presence   contract.IPresenceTracker
	bufferSize int

	mu        sync.Mutex
	connected map[string]int
}

func newSocketHub(log *slog.Logger, service services.IMessengerService,
	presence contract.IPresenceTracker, bufferSize int) *socketHub {
	return &socketHub{
		log:        log,
		service:    service,
		presence:   presence,
		bufferSize: bufferSize,
		connected:  make(map[string]int),
	}
}

func (h *socketHub) connect(userID string) {
	h.mu.Lock()
	h.connected[userID]++
	first := h.connected[userID] == 1
	h.mu.Unlock()

	if first {
		h.presence.SetOnline(userID)
		return
	}
	h.presence.Touch(userID)
}

func (h *socketHub) disconnect(userID string) {
	h.mu.Lock()
	h.connected[userID]--
	last := h.connected[userID] <= 0
	if last {
		delete(h.connected, userID)
	}
	h.mu.Unlock()

	if last {
		h.presence.SetOffline(userID)
	}
}

// socketClient is one WebSocket connection. It is always subscribed to its
// user topic; join/leave frames follow and unfollow conversation topics.
// The client itself is the event sink handed to the bus.
type socketClient struct {
	log      *slog.Logger
	service  services.IMessengerService
	presence contract.IPresenceTracker
	userID   string
	conn     *websocket.Conn
	send     chan []byte

	mu            sync.Mutex
	userSub       *runtime.Subscription
	conversations map[uuid.UUID]*runtime.Subscription
}

type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// handleSocket upgrades the connection and runs it until the client goes
// away. Browsers cannot set the Authorization header on a WebSocket, so the
// token travels as a query parameter.
func (s *Server) handleSocket(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}
	claims, err := s.tokens.Validate(tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	client := &socketClient{
		log:           s.log,
		service:       s.service,
		presence:      s.presence,
		userID:        claims.UserID,
		conn:          conn,
		send:          make(chan []byte, s.sockets.bufferSize),
		conversations: make(map[uuid.UUID]*runtime.Subscription),
	}

	s.sockets.connect(client.userID)
	client.userSub = s.service.Subscribe(event.UserTopic(client.userID), client)
	s.log.Info("Socket connected", "user", client.userID)

	go client.writeLoop()
	client.readLoop()

	client.teardown()
	s.sockets.disconnect(client.userID)
	s.log.Info("Socket disconnected", "user", client.userID)
}

// Consume implements contract.EventSink. It runs on the subscription's
// dispatch goroutine; the context deadline bounds how long a dead
// connection can hold it.
func (c *socketClient) Consume(ctx context.Context, e event.DomainEvent) error {
	frame, err := encodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *socketClient) readLoop() {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.presence.Touch(c.userID)
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err = json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug("Ignoring malformed socket frame", "user", c.userID)
			continue
		}
		c.handle(frame)
	}
}

func (c *socketClient) handle(frame inboundFrame) {
	switch frame.Type {
	case "join":
		id, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.conversations[id]; ok {
			return
		}
		c.conversations[id] = c.service.Subscribe(event.ConversationTopic(id), c)

	case "leave":
		id, err := uuid.Parse(frame.ConversationID)
		if err != nil {
			return
		}
		c.mu.Lock()
		sub, ok := c.conversations[id]
		delete(c.conversations, id)
		c.mu.Unlock()
		if ok {
			c.service.Unsubscribe(sub)
		}
	}
}

func (c *socketClient) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown releases every subscription before closing the send channel:
// once Unsubscribe returns the bus guarantees no further Consume, so the
// close cannot race a delivery.
func (c *socketClient) teardown() {
	c.mu.Lock()
	subs := make([]*runtime.Subscription, 0, len(c.conversations)+1)
	for _, sub := range c.conversations {
		subs = append(subs, sub)
	}
	c.conversations = make(map[uuid.UUID]*runtime.Subscription)
	subs = append(subs, c.userSub)
	c.mu.Unlock()

	for _, sub := range subs {
		c.service.Unsubscribe(sub)
	}
	close(c.send)
	_ = c.conn.Close()
}

func encodeEvent(e event.DomainEvent) ([]byte, error) {
	var frame outboundFrame
	switch evt := e.(type) {
	case event.MessageCreated:
		frame = outboundFrame{Type: "message.created", Payload: fromMessage(evt.Message)}
	case event.ConversationStarted:
		frame = outboundFrame{Type: "conversation.started", Payload: fromConversation(evt.Conversation)}
	case event.PresenceChanged:
		frame = outboundFrame{Type: "presence.changed", Payload: gin.H{
			"user_id": evt.UserID,
			"online":  evt.Online,
			"at":      evt.At,
		}}
	default:
		frame = outboundFrame{Type: "event", Payload: e}
	}
	return json.Marshal(frame)
}
