package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/warp-lan/signaling/internal/v1/logging"
	"github.com/warp-lan/signaling/internal/v1/metrics"
)

// HTTPLimiter enforces a coarse per-IP limit on the plain HTTP endpoints.
// WebSocket admission uses ConnLimiter instead; this layer only shields the
// health and metrics surface from abuse.
type HTTPLimiter struct {
	limiter *limiter.Limiter
}

// NewHTTPLimiter builds a memory-store limiter from a formatted rate such as
// "100-M" (100 requests per minute).
func NewHTTPLimiter(formattedRate string) (*HTTPLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP rate: %w", err)
	}

	return &HTTPLimiter{
		limiter: limiter.New(memory.NewStore(), rate),
	}, nil
}

// Middleware returns a Gin middleware that enforces the per-IP limit and sets
// the conventional X-RateLimit response headers.
func (hl *HTTPLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		lctx, err := hl.limiter.Get(ctx, c.ClientIP())
		if err != nil {
			// Fail open: availability over strictness for a memory store error.
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues("http").Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		c.Next()
	}
}
