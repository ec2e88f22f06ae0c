package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"callbridge-backend/internal/middleware"
	callService "callbridge-backend/internal/service/call"
	"callbridge-backend/pkg/env"
	"callbridge-backend/pkg/logger"
	"callbridge-backend/pkg/metrics"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 * 1024
)

// ErrPeerUnreachable is reported when a targeted delivery cannot reach the
// peer: no open connection or a saturated send buffer. Delivery is
// best-effort, so callers surface this as status, not failure.
var ErrPeerUnreachable = errors.New("peer not reachable")

// SignalingHub manages signaling WebSocket connections and implements the
// call service's Transport: direct sends to a connected identity and
// broadcasts to a call's group.
type SignalingHub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*SignalingClient
	groups map[uuid.UUID]map[uuid.UUID]bool

	calls   *callService.Service
	metrics *metrics.Metrics

	// Concurrency limit on open signaling connections
	maxConnections int
	semaphore      chan struct{}
}

// SignalingClient represents one signaling WebSocket connection
type SignalingClient struct {
	hub    *SignalingHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	callID uuid.UUID
	connID uuid.UUID

	// sendMu serializes queueing against close: Send/Broadcast capture the
	// client outside the hub lock, so the channel must never be closed while
	// a deliver is in flight.
	sendMu sync.Mutex
	closed bool
}

// SignalingFrame is one inbound signaling message from a peer. The payload
// is relayed opaquely.
type SignalingFrame struct {
	Type     string          `json:"type"`
	TargetID *uuid.UUID      `json:"target_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Event is the outbound envelope for every event pushed to a peer
type Event struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var signalingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Reject empty origins - require explicit origin for security
			return false
		}
		return middleware.AllowedOrigins()[origin]
	},
}

// NewSignalingHub creates a new signaling hub
func NewSignalingHub(m *metrics.Metrics) *SignalingHub {
	maxConns := env.GetInt("WS_MAX_SIGNALING_CONNECTIONS", 1000)

	return &SignalingHub{
		conns:          make(map[uuid.UUID]*SignalingClient),
		groups:         make(map[uuid.UUID]map[uuid.UUID]bool),
		metrics:        m,
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}
}

// AttachCallService wires the call service the hub dispatches commands to.
// Called once at startup; the hub and the service reference each other.
func (h *SignalingHub) AttachCallService(svc *callService.Service) {
	h.calls = svc
}

// Send delivers an event to a single connected identity. Best-effort: a
// missing connection or saturated buffer reports ErrPeerUnreachable.
func (h *SignalingHub) Send(identity uuid.UUID, event string, payload any) error {
	h.mu.RLock()
	client, ok := h.conns[identity]
	h.mu.RUnlock()

	if !ok {
		return ErrPeerUnreachable
	}
	return client.deliver(event, payload)
}

// Broadcast delivers an event to every member of the group except the
// excluded identities. Unreachable members are skipped.
func (h *SignalingHub) Broadcast(groupID uuid.UUID, event string, payload any, excluding ...uuid.UUID) error {
	excluded := make(map[uuid.UUID]bool, len(excluding))
	for _, id := range excluding {
		excluded[id] = true
	}

	h.mu.RLock()
	var targets []*SignalingClient
	for identity := range h.groups[groupID] {
		if excluded[identity] {
			continue
		}
		if client, ok := h.conns[identity]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.deliver(event, payload); err != nil {
			logger.Debug("Broadcast delivery skipped",
				zap.String("group_id", groupID.String()),
				zap.String("identity", client.userID.String()))
		}
	}
	return nil
}

// JoinGroup adds an identity to a call's broadcast group
func (h *SignalingHub) JoinGroup(identity, groupID uuid.UUID) {
	h.mu.Lock()
	if h.groups[groupID] == nil {
		h.groups[groupID] = make(map[uuid.UUID]bool)
	}
	h.groups[groupID][identity] = true
	h.mu.Unlock()
}

// LeaveGroup removes an identity from a call's broadcast group
func (h *SignalingHub) LeaveGroup(identity, groupID uuid.UUID) {
	h.mu.Lock()
	if members, ok := h.groups[groupID]; ok {
		delete(members, identity)
		if len(members) == 0 {
			delete(h.groups, groupID)
		}
	}
	h.mu.Unlock()
}

// deliver queues an encoded event on the client's send channel without
// blocking the caller. A closed or saturated client reports ErrPeerUnreachable.
func (c *SignalingClient) deliver(event string, payload any) error {
	data, err := json.Marshal(Event{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return ErrPeerUnreachable
	}

	select {
	case c.send <- data:
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketMessage("out")
		}
		return nil
	default:
		return ErrPeerUnreachable
	}
}

// ServeWS handles a signaling WebSocket request. The connection joins the
// call named by call_id; closing it leaves the call.
func (h *SignalingHub) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			<-h.semaphore
		}
	}

	callID, err := uuid.Parse(c.Query("call_id"))
	if err != nil {
		release()
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid call_id required"})
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := signalingUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		logger.Warn("WebSocket upgrade failed",
			zap.String("call_id", callID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &SignalingClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		callID: callID,
		connID: uuid.New(),
	}

	h.mu.Lock()
	if prev, ok := h.conns[userID]; ok {
		prev.close()
	}
	h.conns[userID] = client
	h.mu.Unlock()

	// The connection id is the connection ref the session tracks.
	if _, _, err := h.calls.JoinCall(c.Request.Context(), callID, userID, client.connID.String()); err != nil {
		h.detach(client)
		release()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "cannot join call"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}

	go client.writePump()
	go func() {
		defer release()
		client.readPump()
	}()
}

// detach removes the client from the connection map if it is still current
func (h *SignalingHub) detach(client *SignalingClient) {
	h.mu.Lock()
	if current, ok := h.conns[client.userID]; ok && current == client {
		delete(h.conns, client.userID)
	}
	h.mu.Unlock()
}

// close shuts the client's send channel exactly once. It takes the same lock
// as deliver, so a concurrent deliver either queues before the close or sees
// the closed flag; nothing sends on a closed channel.
func (c *SignalingClient) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads signaling frames and dispatches them through the call
// service. One pump per connection keeps per-sender ordering.
func (c *SignalingClient) readPump() {
	defer func() {
		c.hub.detach(c)
		c.close()
		c.conn.Close()

		if c.hub.metrics != nil {
			c.hub.metrics.WebSocketDisconnected()
		}

		// Closing the socket is leaving the call. The session may already
		// be gone when the call ended first.
		if _, _, err := c.hub.calls.LeaveCall(c.hub.background(), c.callID, c.userID); err != nil {
			logger.Debug("Leave on disconnect skipped",
				zap.String("call_id", c.callID.String()),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + writeWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + writeWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("call_id", c.callID.String()),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketMessage("in")
		}

		var frame SignalingFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn("Invalid signaling frame",
				zap.String("call_id", c.callID.String()),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}

		status, err := c.hub.calls.RelaySignal(c.hub.background(), c.callID, c.userID, frame.Type, frame.Payload, frame.TargetID)
		if err != nil {
			logger.Warn("Signal rejected",
				zap.String("call_id", c.callID.String()),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}
		if !status.Delivered {
			// Best-effort: tell the sender, keep the connection going.
			_ = c.deliver("delivery_status", status)
		}
	}
}

// writePump writes queued events and keeps the connection alive with pings
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(pingInterval)
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

// background returns the context used for dispatch triggered by socket
// events rather than HTTP requests
func (h *SignalingHub) background() context.Context {
	return context.Background()
}
