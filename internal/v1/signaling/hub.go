// Package signaling implements the rendezvous core: the hub that owns rooms
// and clients, the per-connection pumps, and the /ws admission path.
package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp-lan/signaling/internal/v1/auth"
	"github.com/warp-lan/signaling/internal/v1/logging"
	"github.com/warp-lan/signaling/internal/v1/metrics"
	"github.com/warp-lan/signaling/internal/v1/ratelimit"
	"github.com/warp-lan/signaling/internal/v1/types"
)

const (
	// defaultRoomTTL is how long a rendezvous code stays valid after the
	// room is first created, regardless of activity.
	defaultRoomTTL = 10 * time.Minute

	// defaultSweepInterval is how often expired rooms are reaped.
	defaultSweepInterval = time.Minute
)

// Hub is the authoritative registry of clients and rooms. Membership changes
// and routing are serialized through its event channels, consumed by Run;
// JoinRoom is called directly from read pumps under the registry lock.
type Hub struct {
	rooms   map[types.RoomIdType]*Room
	clients map[types.ClientIdType]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	route      chan *types.Message

	// done is closed when Run returns so producers never block on a hub
	// that has stopped consuming.
	done chan struct{}

	originPolicy *auth.OriginPolicy
	connLimiter  *ratelimit.ConnLimiter

	totalConnections atomic.Int64

	// Overridable in tests.
	roomTTL       time.Duration
	sweepInterval time.Duration
}

// NewHub creates a hub with the given admission dependencies.
func NewHub(originPolicy *auth.OriginPolicy, connLimiter *ratelimit.ConnLimiter) *Hub {
	return &Hub{
		rooms:         make(map[types.RoomIdType]*Room),
		clients:       make(map[types.ClientIdType]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		route:         make(chan *types.Message, sendBufferSize),
		done:          make(chan struct{}),
		originPolicy:  originPolicy,
		connLimiter:   connLimiter,
		roomTTL:       defaultRoomTTL,
		sweepInterval: defaultSweepInterval,
	}
}

// Run consumes registration and routing events until the context is
// cancelled, then closes every client outbox and returns.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	go h.sweepExpiredRooms(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case message := <-h.route:
			h.handleRoute(message)
		}
	}
}

// Route hands a message to the routing path. Never blocks past shutdown.
func (h *Hub) Route(msg *types.Message) {
	select {
	case h.route <- msg:
	case <-h.done:
	}
}

func (h *Hub) registerClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) signalUnregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Counts returns the current number of rooms and clients.
func (h *Hub) Counts() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.clients)
}

// TotalConnections returns the number of connections admitted since start.
func (h *Hub) TotalConnections() int64 {
	return h.totalConnections.Load()
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	logging.Info(context.Background(), "Client registered",
		zap.String("clientId", string(client.ID)))

	// First frame on every connection: the server-assigned id.
	client.enqueue(&types.Message{
		Type:     types.MsgTypeConnected,
		ClientID: client.ID,
	})
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		// Already unregistered; both pumps signal on their way out.
		return
	}
	delete(h.clients, client.ID)
	client.closeSend()

	if roomID := client.RoomID(); roomID != "" {
		if room, ok := h.rooms[roomID]; ok {
			room.mu.Lock()
			delete(room.Clients, client.ID)

			for _, peer := range room.Clients {
				if !peer.enqueue(&types.Message{
					Type:     types.MsgTypePeerLeft,
					From:     client.ID,
					RoomID:   roomID,
					ClientID: client.ID,
				}) {
					metrics.MessagesDropped.WithLabelValues("outbox_full").Inc()
				}
			}

			if len(room.Clients) == 0 {
				delete(h.rooms, roomID)
				metrics.ActiveRooms.Dec()
				logging.Info(context.Background(), "Room deleted (empty)",
					zap.String("roomId", string(roomID)))
			}
			room.mu.Unlock()
		}
	}

	logging.Info(context.Background(), "Client unregistered",
		zap.String("clientId", string(client.ID)))
}

// JoinRoom places the client into the room named by roomID, creating it on
// first use and notifying prior members. Joining the current room again is a
// no-op.
func (h *Hub) JoinRoom(client *Client, roomID types.RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current := client.RoomID(); current == roomID {
		if room, ok := h.rooms[roomID]; ok {
			room.mu.RLock()
			_, member := room.Clients[client.ID]
			room.mu.RUnlock()
			if member {
				return
			}
		}
	} else if current != "" {
		// Leave the previous room; the empty-room rule applies here too.
		if oldRoom, ok := h.rooms[current]; ok {
			oldRoom.mu.Lock()
			delete(oldRoom.Clients, client.ID)
			if len(oldRoom.Clients) == 0 {
				delete(h.rooms, current)
				metrics.ActiveRooms.Dec()
				logging.Info(context.Background(), "Room deleted (empty)",
					zap.String("roomId", string(current)))
			}
			oldRoom.mu.Unlock()
		}
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID, time.Now())
		h.rooms[roomID] = room
		metrics.ActiveRooms.Inc()
		logging.Info(context.Background(), "Room created",
			zap.String("roomId", string(roomID)))
	}

	room.mu.Lock()

	// Existing members learn about the newcomer; the joiner hears nothing
	// about itself.
	for _, peer := range room.Clients {
		if !peer.enqueue(&types.Message{
			Type:     types.MsgTypePeerJoined,
			From:     client.ID,
			RoomID:   roomID,
			ClientID: client.ID,
		}) {
			metrics.MessagesDropped.WithLabelValues("outbox_full").Inc()
		}
	}

	room.Clients[client.ID] = client
	memberCount := len(room.Clients)
	room.mu.Unlock()

	client.setRoomID(roomID)

	logging.Info(context.Background(), "Client joined room",
		zap.String("clientId", string(client.ID)),
		zap.String("roomId", string(roomID)),
		zap.Int("members", memberCount))
}

// handleRoute delivers a relay message: directly when `to` is set, otherwise
// to every room member except the sender. Full or missing recipients lose the
// message; the hub never blocks on a slow peer.
func (h *Hub) handleRoute(message *types.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Direct addressing wins over broadcast.
	if message.To != "" {
		client, ok := h.clients[message.To]
		if !ok {
			metrics.MessagesDropped.WithLabelValues("unknown_recipient").Inc()
			logging.Warn(context.Background(), "Route target not connected",
				zap.String("to", string(message.To)))
			return
		}
		if !client.enqueue(message) {
			metrics.MessagesDropped.WithLabelValues("outbox_full").Inc()
			logging.Warn(context.Background(), "Dropping message, outbox full",
				zap.String("clientId", string(message.To)))
			return
		}
		metrics.MessagesRouted.WithLabelValues(string(message.Type)).Inc()
		return
	}

	if message.RoomID == "" {
		metrics.MessagesDropped.WithLabelValues("unroutable").Inc()
		return
	}

	room, ok := h.rooms[message.RoomID]
	if !ok {
		metrics.MessagesDropped.WithLabelValues("unknown_room").Inc()
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal signaling message", zap.Error(err))
		return
	}

	room.mu.RLock()
	for id, client := range room.Clients {
		if id == message.From { // no echo back to the sender
			continue
		}
		if !client.enqueueRaw(data) {
			metrics.MessagesDropped.WithLabelValues("outbox_full").Inc()
			logging.Warn(context.Background(), "Dropping broadcast, outbox full",
				zap.String("clientId", string(id)),
				zap.String("roomId", string(message.RoomID)))
			continue
		}
		metrics.MessagesRouted.WithLabelValues(string(message.Type)).Inc()
	}
	room.mu.RUnlock()
}

// sweepExpiredRooms reaps rooms past their TTL. Members are told and set
// roomless but stay connected; they may rejoin under a fresh code.
func (h *Hub) sweepExpiredRooms(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.expireRooms(time.Now())
		}
	}
}

func (h *Hub) expireRooms(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID, room := range h.rooms {
		if now.Sub(room.CreatedAt) <= h.roomTTL {
			continue
		}

		room.mu.Lock()
		for _, client := range room.Clients {
			if !client.enqueue(&types.Message{
				Type:   types.MsgTypeRoomExpired,
				RoomID: roomID,
			}) {
				metrics.MessagesDropped.WithLabelValues("outbox_full").Inc()
			}
			client.setRoomID("")
		}
		room.mu.Unlock()

		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomsExpired.Inc()
		logging.Info(context.Background(), "Room expired and deleted",
			zap.String("roomId", string(roomID)),
			zap.Duration("age", now.Sub(room.CreatedAt)))
	}
}

// shutdown closes every outbox, which terminates the write pumps, which close
// the sockets and unwind the read pumps.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	logging.Info(ctx, "Hub shutting down", zap.Int("clients", len(h.clients)))

	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	for id := range h.rooms {
		delete(h.rooms, id)
		metrics.ActiveRooms.Dec()
	}
}
