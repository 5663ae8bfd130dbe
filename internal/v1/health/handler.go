// Package health exposes the operational snapshot of the signaling server.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServiceName identifies this service in health payloads.
const ServiceName = "warp-lan-signaling"

// StatsProvider reports the hub's current registry counts. Satisfied by
// signaling.Hub; narrowed to an interface so the handler is testable without
// a live hub.
type StatsProvider interface {
	Counts() (rooms, clients int)
	TotalConnections() int64
}

// Snapshot is the /health response body. Field names are part of the
// operator-facing contract.
type Snapshot struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	UptimeSeconds    int    `json:"uptime_seconds"`
	TotalConnections int64  `json:"total_connections"`
	ActiveRooms      int    `json:"active_rooms"`
	ActiveClients    int    `json:"active_clients"`
	Version          string `json:"version"`
	Timestamp        string `json:"timestamp"`
}

// Handler serves the health endpoint.
type Handler struct {
	stats     StatsProvider
	version   string
	startTime time.Time
}

// NewHandler creates a health handler reporting on the given hub.
func NewHandler(stats StatsProvider, version string) *Handler {
	return &Handler{
		stats:     stats,
		version:   version,
		startTime: time.Now(),
	}
}

// Health handles GET /health. Always 200 while the process is alive; the
// signaling hub has no external dependencies to probe.
func (h *Handler) Health(c *gin.Context) {
	rooms, clients := h.stats.Counts()

	c.JSON(http.StatusOK, Snapshot{
		Status:           "healthy",
		Service:          ServiceName,
		UptimeSeconds:    int(time.Since(h.startTime).Seconds()),
		TotalConnections: h.stats.TotalConnections(),
		ActiveRooms:      rooms,
		ActiveClients:    clients,
		Version:          h.version,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}
