package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp-lan/signaling/internal/v1/logging"
	"github.com/warp-lan/signaling/internal/v1/metrics"
	"github.com/warp-lan/signaling/internal/v1/types"
)

const (
	// writeWait is the per-frame write deadline.
	writeWait = 10 * time.Second

	// pongWait is the read deadline, refreshed on every pong.
	pongWait = 60 * time.Second

	// pingPeriod is how often the write pump probes the peer. Must be less
	// than pongWait or the read deadline elapses between probes.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames. Signaling messages are small;
	// anything larger is a protocol violation, not a big message.
	maxMessageSize = 64 * 1024

	// sendBufferSize bounds the per-client outbox. A peer that cannot drain
	// this many frames loses messages rather than stalling the hub.
	sendBufferSize = 256
)

// wsConnection defines the WebSocket operations the client depends on,
// so tests can substitute a scripted connection.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Client owns one peer session: the socket, the bounded outbox, and the two
// pumps. The id is assigned by the server and never taken from the remote.
type Client struct {
	ID   types.ClientIdType
	conn wsConnection
	hub  *Hub

	// send is the outbox. The hub closes it exactly once, during
	// unregistration or shutdown; closure tells the write pump to flush a
	// close frame and exit.
	send chan []byte

	mu     sync.RWMutex
	roomID types.RoomIdType
	closed bool

	pingPeriod time.Duration
}

func newClient(conn wsConnection, hub *Hub) *Client {
	return &Client{
		ID:         types.ClientIdType(uuid.New().String()[:8]), // short ids keep frames and logs small
		conn:       conn,
		hub:        hub,
		send:       make(chan []byte, sendBufferSize),
		pingPeriod: pingPeriod,
	}
}

// RoomID returns the room the client currently occupies, or empty.
func (c *Client) RoomID() types.RoomIdType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) setRoomID(id types.RoomIdType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

// enqueue serializes msg onto the outbox without blocking. It reports false
// when the outbox is full and the message was dropped.
func (c *Client) enqueue(msg *types.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal signaling message", zap.Error(err))
		return false
	}
	return c.enqueueRaw(data)
}

// enqueueRaw places pre-serialized bytes onto the outbox without blocking. It
// reports false once the hub has closed the outbox: a read pump racing
// shutdown may still answer a frame, and that answer must be dropped rather
// than sent on a closed channel.
func (c *Client) enqueueRaw(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend marks the outbox closed, then closes it. The flag is set under the
// lock, so a concurrent enqueue either completes before the close or sees the
// flag. Callers are serialized by the hub lock.
func (c *Client) closeSend() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.send)
}

// sendError reports a protocol violation to this client. Dropped silently if
// the outbox is full; an error about an error is not worth a stall.
func (c *Client) sendError(reason string) {
	c.enqueue(types.NewErrorMessage(reason))
}

// readPump decodes inbound frames and dispatches them until the socket errors
// or the read deadline elapses. It is the only reader of the socket.
func (c *Client) readPump() {
	defer func() {
		c.hub.signalUnregister(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// A peer closing its tab is not a warning.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(context.Background(), "Client read error",
					zap.String("clientId", string(c.ID)), zap.Error(err))
			}
			break
		}

		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn(context.Background(), "Malformed frame from client",
				zap.String("clientId", string(c.ID)), zap.Error(err))
			c.sendError("Invalid message format")
			continue
		}

		// Spoofing defense: the only sender identifier a recipient can trust
		// is the one written here.
		msg.From = c.ID

		switch msg.Type {
		case types.MsgTypeHandshakeInit:
			if msg.RoomID == "" {
				c.sendError("Room ID required for handshake")
				continue
			}
			c.hub.JoinRoom(c, msg.RoomID)

		case types.MsgTypeOffer, types.MsgTypeAnswer, types.MsgTypeICECandidate, types.MsgTypeHandshakeVerify:
			if msg.To == "" && msg.RoomID == "" {
				msg.RoomID = c.RoomID()
			}
			c.hub.Route(&msg)

		default:
			c.sendError("Unknown message type")
		}
	}
}

// writePump drains the outbox to the socket and keeps the connection alive
// with pings. It is the sole writer to the socket, heartbeats included.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Outbox closed by the hub: say goodbye and unwind.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Warn(context.Background(), "Client write error",
					zap.String("clientId", string(c.ID)), zap.Error(err))
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
