package signaling

import (
	"sync"
	"time"

	"github.com/warp-lan/signaling/internal/v1/types"
)

// Room is the rendezvous set for one code. It is a thin container: all
// membership changes happen under the hub's lock, with the room lock
// acquired after it.
//
// Room lifetime is anchored to CreatedAt, not last activity. The code is the
// secret, and the secret expires; touching room state on every message would
// buy nothing but contention.
type Room struct {
	ID        types.RoomIdType
	Clients   map[types.ClientIdType]*Client
	CreatedAt time.Time
	mu        sync.RWMutex
}

func newRoom(id types.RoomIdType, now time.Time) *Room {
	return &Room{
		ID:        id,
		Clients:   make(map[types.ClientIdType]*Client),
		CreatedAt: now,
	}
}
