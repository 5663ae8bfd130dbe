package signaling

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp-lan/signaling/internal/v1/logging"
	"github.com/warp-lan/signaling/internal/v1/metrics"
)

// sourceKey extracts the rate-limiting key for a request: the first entry of
// the X-Forwarded-For chain when behind a proxy, then X-Real-IP, then the
// transport peer address.
func sourceKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ServeWs is the /ws handler: rate-limit the source, check the origin,
// upgrade, register the client, and start its pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	key := sourceKey(c.Request)
	if !h.connLimiter.Allow(key) {
		metrics.RateLimitExceeded.WithLabelValues("websocket").Inc()
		logging.Warn(c.Request.Context(), "Rate limited connection attempt",
			zap.String("source", key))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.originPolicy.Permits(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its refusal (403 on origin, 400 on a
		// non-websocket request).
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.totalConnections.Add(1)
	metrics.IncConnection()

	client := newClient(conn, h)
	h.registerClient(client)

	go client.writePump()
	go client.readPump()
}
